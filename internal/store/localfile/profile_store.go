// Package localfile persists the bidder's own profile in a JSON file. The
// client modes run without a database; the file plays the role the backend
// profile table plays on the server side.
package localfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// ProfileStore is a file-backed domain.ProfileStore holding one or more
// profiles keyed by user ID. Writes are atomic: marshal to a temp file in the
// same directory, then rename over the target.
type ProfileStore struct {
	path string

	mu sync.Mutex
}

// NewProfileStore creates a store backed by the JSON file at path. The file
// is created on first save; a missing file reads as an empty store.
func NewProfileStore(path string) *ProfileStore {
	return &ProfileStore{path: path}
}

// Get returns the profile for userID, or domain.ErrNotFound.
func (s *ProfileStore) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load()
	if err != nil {
		return domain.UserProfile{}, err
	}
	p, ok := profiles[userID]
	if !ok {
		return domain.UserProfile{}, fmt.Errorf("localfile: profile %s: %w", userID, domain.ErrNotFound)
	}
	return p, nil
}

// GetByEmail returns the profile with the given email, or domain.ErrNotFound.
func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load()
	if err != nil {
		return domain.UserProfile{}, err
	}
	for _, p := range profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return domain.UserProfile{}, fmt.Errorf("localfile: profile email %s: %w", email, domain.ErrNotFound)
}

// Save inserts or replaces a profile.
func (s *ProfileStore) Save(ctx context.Context, profile domain.UserProfile) error {
	if profile.ID == "" {
		return fmt.Errorf("localfile: save profile: empty user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing, ok := profiles[profile.ID]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	profiles[profile.ID] = profile

	return s.store(profiles)
}

func (s *ProfileStore) load() (map[string]domain.UserProfile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]domain.UserProfile{}, nil
		}
		return nil, fmt.Errorf("localfile: read %s: %w", s.path, err)
	}

	profiles := map[string]domain.UserProfile{}
	if len(data) == 0 {
		return profiles, nil
	}
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("localfile: decode %s: %w", s.path, err)
	}
	return profiles, nil
}

func (s *ProfileStore) store(profiles map[string]domain.UserProfile) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("localfile: create dir %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("localfile: encode profiles: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profiles-*.json")
	if err != nil {
		return fmt.Errorf("localfile: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("localfile: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("localfile: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("localfile: replace %s: %w", s.path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ProfileStore = (*ProfileStore)(nil)
