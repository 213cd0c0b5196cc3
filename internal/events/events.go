// Package events is the pipeline's progress surface: discrete, typed
// notifications of tile transitions and candidate decisions, delivered
// best-effort to whatever sink the caller plugs in.
package events

import (
	"fmt"
	"time"

	"skymosaic/internal/logger"
)

// Type enumerates the event kinds.
type Type string

const (
	TileTransition   Type = "tile_transition"
	CandidateScored  Type = "candidate_scored"
	CandidateSkipped Type = "candidate_skipped"
	SourceUsed       Type = "source_used"
	MonthStarted     Type = "month_started"
	MonthFinished    Type = "month_finished"
)

// Event is one notification. Fields beyond Type are filled as applicable.
type Event struct {
	Time      time.Time
	Type      Type
	TileIndex int
	Source    string
	ImageID   string
	Status    string
	Score     float64
	Reason    string
	Year      int
	Month     int
}

// Sink consumes events. Implementations must not block; delivery is
// best-effort and carries no guarantee.
type Sink interface {
	Publish(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Log writes events through the structured logger at debug level, with
// tile transitions raised to info.
type Log struct{}

func (Log) Publish(e Event) {
	switch e.Type {
	case TileTransition:
		logger.Info("Tile transition", map[string]interface{}{
			"tile": e.TileIndex, "status": e.Status, "reason": e.Reason,
		})
	case CandidateScored:
		logger.Debugf("Tile %d: %s %s scored %.3f", e.TileIndex, e.Source, e.ImageID, e.Score)
	case CandidateSkipped:
		logger.Debugf("Tile %d: %s %s skipped: %s", e.TileIndex, e.Source, e.ImageID, e.Reason)
	case SourceUsed:
		logger.Debugf("Tile %d: using %s", e.TileIndex, e.Source)
	case MonthStarted, MonthFinished:
		logger.Infof("%s %04d-%02d %s", e.Type, e.Year, e.Month, e.Status)
	default:
		logger.Debugf("Event %s: %+v", e.Type, e)
	}
}

// Multi fans one event out to several sinks.
type Multi []Sink

func (m Multi) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}

// Recorder retains events in memory. Safe only for single-goroutine use;
// tests wrap it in a lock when publishing concurrently.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(e Event) {
	r.Events = append(r.Events, e)
}

// ByType returns the recorded events of one type.
func (r *Recorder) ByType(t Type) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Buffered decouples publishers from a slow sink through a bounded channel.
// A full buffer drops the event; a tile task never waits on telemetry.
type Buffered struct {
	ch   chan Event
	done chan struct{}
}

// NewBuffered starts a consumer goroutine draining into next. Close waits
// for the drain to finish.
func NewBuffered(next Sink, size int) *Buffered {
	b := &Buffered{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
	go func() {
		defer close(b.done)
		for e := range b.ch {
			next.Publish(e)
		}
	}()
	return b
}

func (b *Buffered) Publish(e Event) {
	select {
	case b.ch <- e:
	default:
		// Buffer full. Telemetry loss is acceptable, stalling a tile is not.
	}
}

// Close stops accepting events and drains the buffer. Publish after Close
// panics; callers close only after the pipeline has finished.
func (b *Buffered) Close() {
	close(b.ch)
	<-b.done
}

// String renders a compact description, used in progress output.
func (e Event) String() string {
	switch e.Type {
	case TileTransition:
		return fmt.Sprintf("tile %d -> %s", e.TileIndex, e.Status)
	case CandidateScored:
		return fmt.Sprintf("tile %d: %s scored %.3f", e.TileIndex, e.ImageID, e.Score)
	case CandidateSkipped:
		return fmt.Sprintf("tile %d: %s skipped (%s)", e.TileIndex, e.ImageID, e.Reason)
	default:
		return string(e.Type)
	}
}
