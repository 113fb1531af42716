package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, contentType string, body io.Reader) error
}

// BlobReader downloads objects from blob storage.
type BlobReader interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Archiver exports old bids and audit entries to blob storage.
type Archiver interface {
	ArchiveBids(ctx context.Context, before time.Time) (key string, count int, err error)
	ArchiveAudit(ctx context.Context, before time.Time) (key string, count int, err error)
}
