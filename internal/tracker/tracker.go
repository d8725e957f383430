// Package tracker holds per-entity, per-stage status for observers.
package tracker

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/profile-cli/internal/model"
)

// Event is emitted on every accepted status write.
type Event struct {
	Key     model.EntityKey   `json:"key"`
	Stage   model.Stage       `json:"stage"`
	Status  model.StageStatus `json:"status"`
	Message string            `json:"message,omitempty"`
	At      time.Time         `json:"at"`
}

type entry struct {
	stages map[model.Stage]model.StageState
}

type subscriber struct {
	ch chan Event
}

// Tracker is a concurrency-safe status store. The orchestrator is its only
// writer; any number of observers may read or subscribe.
type Tracker struct {
	mu      sync.RWMutex
	entries map[model.EntityKey]*entry

	subMu sync.Mutex
	subs  map[*subscriber]struct{}

	dropped atomic.Int64
	nowFunc func() time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		entries: make(map[model.EntityKey]*entry),
		subs:    make(map[*subscriber]struct{}),
		nowFunc: time.Now,
	}
}

// Start opens a fresh run for the entity with every listed stage pending.
// Any previous run's statuses for the key are discarded.
func (t *Tracker) Start(key model.EntityKey, stages []model.Stage) {
	now := t.nowFunc()
	e := &entry{stages: make(map[model.Stage]model.StageState, len(stages))}
	for _, s := range stages {
		e.stages[s] = model.StageState{Status: model.StatusPending, UpdatedAt: now}
	}

	t.mu.Lock()
	t.entries[key] = e
	t.mu.Unlock()

	for _, s := range stages {
		t.publish(Event{Key: key, Stage: s, Status: model.StatusPending, At: now})
	}
}

// Set records a status for a stage. Writes that move a stage backwards, touch
// a terminal stage, or name a stage outside the current run are programming
// errors and panic.
func (t *Tracker) Set(key model.EntityKey, stage model.Stage, status model.StageStatus, message string) {
	now := t.nowFunc()

	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		t.mu.Unlock()
		panic(fmt.Sprintf("tracker: set %s on unknown entity %s", stage, key))
	}
	cur, ok := e.stages[stage]
	if !ok {
		t.mu.Unlock()
		panic(fmt.Sprintf("tracker: stage %s not started for %s", stage, key))
	}
	if !model.CanTransition(cur.Status, status) {
		t.mu.Unlock()
		panic(fmt.Sprintf("tracker: illegal transition %s -> %s for %s/%s", cur.Status, status, key, stage))
	}
	e.stages[stage] = model.StageState{Status: status, Message: message, UpdatedAt: now}
	t.mu.Unlock()

	t.publish(Event{Key: key, Stage: stage, Status: status, Message: message, At: now})
}

// Get returns the status of every stage in the entity's current run, or nil
// when the entity is unknown.
func (t *Tracker) Get(key model.EntityKey) map[model.Stage]model.StageStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	out := make(map[model.Stage]model.StageStatus, len(e.stages))
	for s, st := range e.stages {
		out[s] = st.Status
	}
	return out
}

// Snapshot returns a copy of the detailed stage states for the entity.
func (t *Tracker) Snapshot(key model.EntityKey) (map[model.Stage]model.StageState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	out := make(map[model.Stage]model.StageState, len(e.stages))
	for s, st := range e.stages {
		out[s] = st
	}
	return out, true
}

// Done reports whether every stage of the entity's current run is terminal.
func (t *Tracker) Done(key model.EntityKey) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[key]
	if !ok {
		return false
	}
	for _, st := range e.stages {
		if !st.Status.Terminal() {
			return false
		}
	}
	return true
}

// Keys lists tracked entities sorted by project then name.
func (t *Tracker) Keys() []model.EntityKey {
	t.mu.RLock()
	keys := make([]model.EntityKey, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProjectID != keys[j].ProjectID {
			return keys[i].ProjectID < keys[j].ProjectID
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// Subscribe returns a channel of status events and a cancel func that closes
// it. A subscriber whose buffer is full misses events rather than blocking
// the writer.
func (t *Tracker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{ch: make(chan Event, buffer)}

	t.subMu.Lock()
	t.subs[sub] = struct{}{}
	t.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, sub)
			close(sub.ch)
			t.subMu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Dropped returns how many events were discarded for slow subscribers.
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

func (t *Tracker) publish(ev Event) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			t.dropped.Add(1)
		}
	}
}
