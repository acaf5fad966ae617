package crawl

import (
	"context"
	"io"
	"time"
)

// TargetLister enumerates the full crawl universe. Implementations must return
// targets in a stable order, since chunk boundaries are plain index arithmetic.
type TargetLister interface {
	ListTargets(ctx context.Context) ([]Target, error)
}

// Builder produces catalog data for a batch of targets.
type Builder interface {
	Build(ctx context.Context, targets []Target) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Hasher computes digests for artifact naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces invocation IDs.
type IDGenerator interface {
	NewID() (string, error)
}
