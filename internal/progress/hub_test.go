package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestHubBatchBySize verifies the hub flushes once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageChunkStart))
	hub.Emit(sampleEvent(StageChunkDone))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the periodic flush handles small batches.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageChunkStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWhenFull asserts Emit drops rather than blocks.
func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageChunkStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(1), hub.Dropped())
	require.Equal(t, int64(0), hub.unreported.Load(), "first drop is reported right away")

	hub.Emit(sampleEvent(StageChunkStart))
	require.Equal(t, int64(2), hub.Dropped())
	require.Equal(t, int64(1), hub.unreported.Load(), "later drops wait for the next warning")
}

// TestHubSlowSinkDoesNotDelayOthers checks sinks are flushed concurrently.
func TestHubSlowSinkDoesNotDelayOthers(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	slow := sinkFunc(func(ctx context.Context, _ []Event) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	fast := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1, SinkTimeout: 5 * time.Second}, slow, fast)

	hub.Emit(sampleEvent(StageChunkStart))
	require.Eventually(t, func() bool {
		return len(fast.Batches()) == 1
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, hub.Close(context.Background()))
}

// TestHubFlushOnClose ensures Close drains buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageChunkDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.Closed())

	// Emits after Close are counted as dropped, and Close stays idempotent.
	hub.Emit(sampleEvent(StageChunkDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Equal(t, int64(1), hub.Dropped())
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{Stage: StageChunkStart})
	hub.Emit(Event{InvocationID: UUIDToBytes(uuid.New()), TS: time.Now(), Stage: StageChunkError})

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestHubSinkErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	failing := sinkFunc(func(context.Context, []Event) error { return errors.New("sink down") })
	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, sink)

	hub.Emit(sampleEvent(StageChunkDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StageChunkStart))
	require.Zero(t, hub.Dropped())
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := sampleEvent(StageChunkStart)
	require.NoError(t, base.Validate())

	tests := []struct {
		name string
		mut  func(*Event)
	}{
		{name: "missing id", mut: func(e *Event) { e.InvocationID = [16]byte{} }},
		{name: "missing ts", mut: func(e *Event) { e.TS = time.Time{} }},
		{name: "unknown stage", mut: func(e *Event) { e.Stage = "BOGUS" }},
		{name: "error without note", mut: func(e *Event) { e.Stage = StageChunkError }},
		{name: "dispatch to chunk zero", mut: func(e *Event) { e.Stage = StageDispatchSent; e.Chunk = 0 }},
		{name: "inverted bounds", mut: func(e *Event) { e.Start, e.End = 5, 2 }},
		{name: "negative duration", mut: func(e *Event) { e.Dur = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evt := base
			tt.mut(&evt)
			require.Error(t, evt.Validate())
		})
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	require.Equal(t, UUIDToBytes(id), ParseID(id.String()))
	require.Equal(t, [16]byte{}, ParseID("not-a-uuid"))

	evt := Event{InvocationID: ParseID(id.String())}
	require.Equal(t, id, evt.InvocationUUID())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func sampleEvent(stage Stage) Event {
	return Event{
		InvocationID: UUIDToBytes(uuid.New()),
		TS:           time.Now(),
		Stage:        stage,
		Chunk:        1,
		Size:         5,
		Start:        5,
		End:          10,
		Total:        12,
	}
}
