package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records every event it consumes.
type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
	fail   error
	block  chan struct{}
}

func (s *captureSink) Consume(ctx context.Context, evt Event) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func validEvent(stage Stage) Event {
	return Event{
		RunID:   uuid.New(),
		TS:      time.Now().UTC(),
		Stage:   stage,
		SetCode: "ALL",
	}
}

// TestHubDeliversToAllSinks emits events and verifies fan-out plus drain on Close.
func TestHubDeliversToAllSinks(t *testing.T) {
	t.Parallel()

	first := &captureSink{}
	second := &captureSink{}
	hub := NewHub(Config{}, first, second)

	hub.Emit(validEvent(StageRunStart))
	hub.Emit(validEvent(StageItem))
	hub.Emit(validEvent(StageRunDone))

	require.NoError(t, hub.Close(context.Background()))

	for _, sink := range []*captureSink{first, second} {
		events := sink.snapshot()
		require.Len(t, events, 3)
		assert.Equal(t, StageRunStart, events[0].Stage)
		assert.Equal(t, StageRunDone, events[2].Stage)
		assert.True(t, sink.closed, "Close must close every sink")
	}
}

// TestHubDropsInvalidEvents verifies malformed events never reach sinks.
func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{})                                      // missing run id
	hub.Emit(Event{RunID: uuid.New(), TS: time.Now()})     // missing stage
	hub.Emit(Event{RunID: uuid.New(), Stage: StageItem})   // missing timestamp
	hub.Emit(validEvent(Stage("BOGUS")))                   // unknown stage
	hub.Emit(validEvent(StageHeartbeat))

	require.NoError(t, hub.Close(context.Background()))

	events := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, StageHeartbeat, events[0].Stage)
}

// TestHubEmitNeverBlocks fills the buffer behind a stalled sink and checks
// that Emit still returns immediately.
func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{block: make(chan struct{})}
	hub := NewHub(Config{BufferSize: 1, SinkTimeout: 50 * time.Millisecond}, sink)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Emit(validEvent(StageItem))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	close(sink.block)
	require.NoError(t, hub.Close(context.Background()))
}

// TestHubEmitAfterClose verifies events emitted after Close are ignored.
func TestHubEmitAfterClose(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(StageItem))
	assert.Empty(t, sink.snapshot())

	// Close is idempotent.
	require.NoError(t, hub.Close(context.Background()))
}

// TestHubSinkErrorsDoNotStopDelivery checks one failing sink leaves the other untouched.
func TestHubSinkErrorsDoNotStopDelivery(t *testing.T) {
	t.Parallel()

	failing := &captureSink{fail: errors.New("boom")}
	healthy := &captureSink{}
	hub := NewHub(Config{}, failing, healthy)

	hub.Emit(validEvent(StageItem))
	require.NoError(t, hub.Close(context.Background()))

	assert.Len(t, healthy.snapshot(), 1)
}

// TestNilHubIsSafe covers the nil receiver conveniences.
func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(validEvent(StageItem))
	assert.NoError(t, hub.Close(context.Background()))
}

// TestRateLimiterAllow checks the warn throttle window.
func TestRateLimiterAllow(t *testing.T) {
	t.Parallel()

	limiter := rateLimiter{interval: time.Second}
	base := time.Unix(1000, 0)
	assert.True(t, limiter.Allow(base))
	assert.False(t, limiter.Allow(base.Add(500*time.Millisecond)))
	assert.True(t, limiter.Allow(base.Add(1500*time.Millisecond)))
}

// TestEventValidate exercises the validation rules directly.
func TestEventValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validEvent(StageRefine).Validate())

	bad := validEvent(StageItem)
	bad.ETA = -time.Second
	assert.Error(t, bad.Validate())

	assert.Error(t, Event{}.Validate())
}
