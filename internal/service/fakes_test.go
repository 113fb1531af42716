package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bidsphere/bidsphere/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// memListings is an in-memory domain.ListingStore.
type memListings struct {
	mu       sync.Mutex
	listings map[string]domain.Listing
	snapErr  error
}

func newMemListings(listings ...domain.Listing) *memListings {
	m := &memListings{listings: map[string]domain.Listing{}}
	for _, l := range listings {
		m.listings[l.ID] = l
	}
	return m
}

func (m *memListings) Create(ctx context.Context, l domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[l.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.listings[l.ID] = l
	return nil
}

func (m *memListings) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (m *memListings) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Listing
	for _, l := range m.listings {
		if l.Status == domain.ListingStatusActive {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memListings) SetLatestBid(ctx context.Context, listingID string, snap domain.BidSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapErr != nil {
		return m.snapErr
	}
	l, ok := m.listings[listingID]
	if !ok {
		return domain.ErrNotFound
	}
	l.LatestBid = &snap
	m.listings[listingID] = l
	return nil
}

func (m *memListings) UpdateStatus(ctx context.Context, id string, status domain.ListingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Status = status
	m.listings[id] = l
	return nil
}

func (m *memListings) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.listings)), nil
}

// memBids is an in-memory domain.BidStore.
type memBids struct {
	mu   sync.Mutex
	bids []domain.Bid
}

func (m *memBids) Create(ctx context.Context, b domain.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bids = append(m.bids, b)
	return nil
}

func (m *memBids) GetByID(ctx context.Context, id string) (domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bids {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Bid{}, domain.ErrNotFound
}

func (m *memBids) ListByListing(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Bid
	for _, b := range m.bids {
		if b.ListingID == listingID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBids) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Bid
	for _, b := range m.bids {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBids) ListBefore(ctx context.Context, before time.Time) ([]domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Bid
	for _, b := range m.bids {
		if b.CreatedAt.Before(before) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBids) all() []domain.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Bid(nil), m.bids...)
}

// memProfiles is an in-memory domain.ProfileStore.
type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]domain.UserProfile
}

func (m *memProfiles) Get(ctx context.Context, id string) (domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return domain.UserProfile{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memProfiles) GetByEmail(ctx context.Context, email string) (domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return domain.UserProfile{}, domain.ErrNotFound
}

func (m *memProfiles) Save(ctx context.Context, p domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profiles == nil {
		m.profiles = map[string]domain.UserProfile{}
	}
	m.profiles[p.ID] = p
	return nil
}

// memAudit records audit events in memory.
type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		ID:        int64(len(m.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry(nil), m.entries...), nil
}

func (m *memAudit) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAudit) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Event)
	}
	return out
}

// fakeLocks hands out locks and remembers the keys it saw. err short-circuits
// every acquisition.
type fakeLocks struct {
	mu   sync.Mutex
	err  error
	keys []string
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, key)
	return func() {}, nil
}

// memBus collects published events per channel.
type memBus struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func (m *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payloads == nil {
		m.payloads = map[string][][]byte{}
	}
	m.payloads[channel] = append(m.payloads[channel], payload)
	return nil
}

func (m *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *memBus) published(channel string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.payloads[channel]...)
}
