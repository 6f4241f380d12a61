package progress

import "context"

// Sink consumes progress events one at a time. Implementations must honor ctx
// deadlines and may be invoked from the hub's delivery goroutine only.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// crawl engine can remain agnostic about where events end up.
type Emitter interface {
	Emit(evt Event)
}

// Discard is an Emitter that drops every event. Useful when no telemetry
// consumer is configured.
type Discard struct{}

// Emit implements Emitter.
func (Discard) Emit(Event) {}
