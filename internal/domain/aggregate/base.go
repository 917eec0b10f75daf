package aggregate

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNilEvent        = errors.New("event is nil")
	ErrMissingSourceID = errors.New("event has no source aggregate id")
)

// EventHeader carries the metadata every domain event shares. Events embed it
// by value so that Header is promoted onto the event pointer.
type EventHeader struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Version     int       `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
	PerformedBy string    `json:"performed_by,omitempty"`
}

func (h *EventHeader) Header() *EventHeader { return h }

// NewHeader stamps a fresh event id and timestamp.
func NewHeader(sourceID, performedBy string, at time.Time) EventHeader {
	return EventHeader{
		ID:          uuid.New().String(),
		SourceID:    sourceID,
		Timestamp:   at.UTC(),
		PerformedBy: performedBy,
	}
}

// Event is implemented by every domain event.
type Event interface {
	Header() *EventHeader
	EventType() string
}

// Root holds the identity, optimistic-concurrency version and staged events
// of an aggregate. Aggregates embed it.
type Root struct {
	ID      string `json:"id"`
	Version int    `json:"version"`

	pending []Event
}

func (r *Root) Base() *Root { return r }

// PendingEvents returns the events applied since the last successful commit.
func (r *Root) PendingEvents() []Event {
	out := make([]Event, len(r.pending))
	copy(out, r.pending)
	return out
}

// ClearEvents must only be called once the events are durably stored.
func (r *Root) ClearEvents() {
	r.pending = nil
}

// PersistedVersion is the version the aggregate had when it was loaded or
// last committed. It is the expected version for a conditional update.
func (r *Root) PersistedVersion() int {
	return r.Version - len(r.pending)
}

// Tracked is what a unit of work needs to capture an aggregate's events.
type Tracked interface {
	AggregateType() string
	Base() *Root
}

// Aggregate is an aggregate with a closed event set E.
type Aggregate[E Event] interface {
	Base() *Root
	// When mutates in-memory state only.
	When(E)
	EnsureValidState() error
}

// ModificationInfo is embedded by aggregates that record their last change.
type ModificationInfo struct {
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

func (m *ModificationInfo) modificationInfo() *ModificationInfo { return m }

type modifiable interface {
	modificationInfo() *ModificationInfo
}

// Apply runs an event through the aggregate: it assigns the next version,
// applies the state change, stamps modification info and validates
// invariants. The event is staged only if validation passes. On a
// validation failure the aggregate must be discarded.
func Apply[E Event](agg Aggregate[E], e E) error {
	if any(e) == nil {
		return ErrNilEvent
	}

	r := agg.Base()
	h := e.Header()
	if r.ID != "" {
		h.SourceID = r.ID
	}
	if h.SourceID == "" {
		return ErrMissingSourceID
	}
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now().UTC()
	}

	h.Version = r.Version + 1
	agg.When(e)
	if r.ID == "" {
		r.ID = h.SourceID
	}
	r.Version = h.Version

	if m, ok := agg.(modifiable); ok {
		info := m.modificationInfo()
		info.UpdatedAt = h.Timestamp
		if h.PerformedBy != "" {
			info.UpdatedBy = h.PerformedBy
		}
	}

	if err := agg.EnsureValidState(); err != nil {
		return err
	}

	r.pending = append(r.pending, e)
	return nil
}
