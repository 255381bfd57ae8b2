package progress

import "context"

// Sink receives delivered batches. The Hub calls Consume from a single
// goroutine with a per-call deadline, and Close once during shutdown.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events. The batch runner and pipelines depend on this
// rather than on Hub, so a nil Emitter simply disables progress.
type Emitter interface {
	Emit(evt Event)
}
