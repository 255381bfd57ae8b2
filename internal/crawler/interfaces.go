package crawler

import (
	"context"
	"errors"
	"io"
	"time"
)

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes discovery notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a page looks like a client-rendered shell
// that is worth re-checking in a real browser.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Queue provides enqueue/dequeue semantics for batch items.
type Queue[T any] interface {
	Enqueue(ctx context.Context, item QueueItem[T]) error
	Dequeue(ctx context.Context) (QueueItem[T], error)
}

// Limiter blocks until the caller may proceed for the given key.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a batch element with its position in the input.
type QueueItem[T any] struct {
	Index int
	Key   string
	Value T
}

// ErrQueueClosed is returned by Dequeue once a closed queue is drained.
var ErrQueueClosed = errors.New("queue closed")
