package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// BidArchiveStore is the read surface the archiver needs from the bid store.
type BidArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Bid, error)
}

// AuditArchiveStore is the read surface the archiver needs from the audit log.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// Archiver implements domain.Archiver by exporting old bids and audit entries
// as JSONL objects. Deleting the archived rows from the primary store is a
// separate explicit step run after the archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	bids   BidArchiveStore
	audit  AuditArchiveStore
	log    domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, bids BidArchiveStore, audit AuditArchiveStore, log domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		bids:   bids,
		audit:  audit,
		log:    log,
	}
}

// ArchiveBids exports every bid created before the cutoff to
// archive/bids/YYYY-MM.jsonl and records the export in the audit log.
func (a *Archiver) ArchiveBids(ctx context.Context, before time.Time) (string, int, error) {
	bids, err := a.bids.ListBefore(ctx, before)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive bids query: %w", err)
	}
	if len(bids) == 0 {
		return "", 0, nil
	}

	buf, err := marshalJSONL(bids)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive bids marshal: %w", err)
	}

	key := archiveKey("bids", before)
	if err := a.writer.Write(ctx, key, "application/x-ndjson", bytes.NewReader(buf)); err != nil {
		return "", 0, fmt.Errorf("s3blob: archive bids upload: %w", err)
	}

	if err := a.log.Log(ctx, "archive.bids", map[string]any{
		"key":    key,
		"count":  len(bids),
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return key, len(bids), fmt.Errorf("s3blob: archive bids audit log: %w", err)
	}
	return key, len(bids), nil
}

// ArchiveAudit exports every audit entry created before the cutoff to
// archive/audit/YYYY-MM.jsonl.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (string, int, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return "", 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	key := archiveKey("audit", before)
	if err := a.writer.Write(ctx, key, "application/x-ndjson", bytes.NewReader(buf)); err != nil {
		return "", 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	if err := a.log.Log(ctx, "archive.audit", map[string]any{
		"key":    key,
		"count":  len(entries),
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return key, len(entries), fmt.Errorf("s3blob: archive audit audit log: %w", err)
	}
	return key, len(entries), nil
}

// marshalJSONL serializes a slice as newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// archiveKey builds the object key archive/{kind}/YYYY-MM.jsonl.
func archiveKey(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
