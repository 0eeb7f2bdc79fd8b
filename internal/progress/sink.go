package progress

import "context"

// Sink consumes batches of run events. Implementations must tolerate
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so
// pipelines stay agnostic about buffering and persistence.
type Emitter interface {
	Emit(evt Event)
}
