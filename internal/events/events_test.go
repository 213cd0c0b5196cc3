package events

import (
	"testing"
	"time"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	sink := Multi{a, b}

	sink.Publish(Event{Type: SourceUsed, Source: "sentinel2"})

	if len(a.Events) != 1 || len(b.Events) != 1 {
		t.Errorf("fan-out reached %d and %d sinks, want 1 and 1", len(a.Events), len(b.Events))
	}
}

func TestRecorderByType(t *testing.T) {
	r := &Recorder{}
	r.Publish(Event{Type: TileTransition, TileIndex: 1})
	r.Publish(Event{Type: SourceUsed, TileIndex: 1})
	r.Publish(Event{Type: TileTransition, TileIndex: 2})

	if got := len(r.ByType(TileTransition)); got != 2 {
		t.Errorf("ByType(TileTransition) = %d events, want 2", got)
	}
	if got := len(r.ByType(MonthStarted)); got != 0 {
		t.Errorf("ByType(MonthStarted) = %d events, want 0", got)
	}
}

func TestBufferedDeliversInOrder(t *testing.T) {
	rec := &Recorder{}
	b := NewBuffered(rec, 16)

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: TileTransition, TileIndex: i})
	}
	b.Close()

	if len(rec.Events) != 5 {
		t.Fatalf("delivered %d events, want 5", len(rec.Events))
	}
	for i, e := range rec.Events {
		if e.TileIndex != i {
			t.Errorf("event %d has tile index %d", i, e.TileIndex)
		}
	}
}

// blockingSink holds every Publish until released.
type blockingSink struct {
	release chan struct{}
	seen    chan Event
}

func (s *blockingSink) Publish(e Event) {
	s.seen <- e
	<-s.release
}

func TestBufferedDropsWhenFull(t *testing.T) {
	slow := &blockingSink{release: make(chan struct{}), seen: make(chan Event, 16)}
	b := NewBuffered(slow, 2)

	// First event occupies the consumer, the next two fill the buffer,
	// anything beyond is dropped without blocking.
	for i := 0; i < 10; i++ {
		done := make(chan struct{})
		go func(i int) {
			b.Publish(Event{Type: CandidateScored, TileIndex: i})
			close(done)
		}(i)
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a full buffer")
		}
	}

	close(slow.release)
	b.Close()

	delivered := len(slow.seen)
	if delivered < 1 || delivered > 3 {
		t.Errorf("delivered %d events, want between 1 and 3", delivered)
	}
}
