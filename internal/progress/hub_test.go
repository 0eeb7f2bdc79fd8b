package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFlushesBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, MaxBatch: 2, MaxWait: time.Minute}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	evt := sampleEvent(StageRunStart)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushesByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatch: 100, MaxWait: 25 * time.Millisecond}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatch: 100, MaxWait: time.Minute}, sink)

	hub.Emit(sampleEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatch: 1, MaxWait: 10 * time.Millisecond}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(Event{}) // no run id
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.Batches())
	assert.Zero(t, hub.Dropped())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := sampleEvent(StageRunStart)
	assert.NoError(t, base.Validate())

	missingOp := base
	missingOp.Operation = ""
	assert.Error(t, missingOp.Validate())

	page := sampleEvent(StagePageDone)
	page.StatusClass = ""
	assert.Error(t, page.Validate())

	unknown := base
	unknown.Stage = "SOMETHING"
	assert.Error(t, unknown.Validate())
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Status2xx, ClassifyStatus("200"))
	assert.Equal(t, Status3xx, ClassifyStatus("301"))
	assert.Equal(t, Status4xx, ClassifyStatus("404"))
	assert.Equal(t, Status5xx, ClassifyStatus("503"))
	assert.Equal(t, StatusNone, ClassifyStatus("000"))
	assert.Equal(t, StatusOther, ClassifyStatus("oops"))
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
}

func newStubSink() *stubSink { return &stubSink{} }

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error { return nil }

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	evt := Event{
		RunID:     UUIDToBytes(uuid.New()),
		TS:        time.Now(),
		Stage:     stage,
		Operation: "crawl",
		Land:      "asthma",
	}
	if stage == StagePageDone {
		evt.StatusClass = Status2xx
	}
	return evt
}
