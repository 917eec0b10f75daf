package store

import (
	"errors"
	"fmt"

	"github.com/example/stock-reservation/internal/domain/aggregate"
)

// ErrUnsavedChanges means an aggregate applied events after its last
// Add/Update, so its outbox rows would describe state that is not stored.
var ErrUnsavedChanges = errors.New("aggregate changed after it was written")

// Tracker is the registry of aggregates a unit of work has written.
// Repositories call Track from Add and Update.
type Tracker struct {
	entries []trackedEntry
	index   map[aggregate.Tracked]int
}

type trackedEntry struct {
	agg     aggregate.Tracked
	written int
}

func (t *Tracker) Track(agg aggregate.Tracked) {
	if t.index == nil {
		t.index = make(map[aggregate.Tracked]int)
	}
	if i, ok := t.index[agg]; ok {
		t.entries[i].written = agg.Base().Version
		return
	}
	t.index[agg] = len(t.entries)
	t.entries = append(t.entries, trackedEntry{agg: agg, written: agg.Base().Version})
}

func (t *Tracker) Len() int { return len(t.entries) }

// OutboxMessages builds one row per pending event in tracking order. The
// events stay staged until ClearEvents.
func (t *Tracker) OutboxMessages() ([]OutboxMessage, error) {
	var msgs []OutboxMessage
	for _, e := range t.entries {
		root := e.agg.Base()
		if root.Version != e.written {
			return nil, fmt.Errorf("%w: %s %s at version %d, written at %d",
				ErrUnsavedChanges, e.agg.AggregateType(), root.ID, root.Version, e.written)
		}
		for _, ev := range root.PendingEvents() {
			m, err := NewOutboxMessage(e.agg.AggregateType(), ev)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// ClearEvents is called after the storage transaction committed.
func (t *Tracker) ClearEvents() {
	for _, e := range t.entries {
		e.agg.Base().ClearEvents()
	}
}
