// Package taskstore keeps the in-memory task list of the session user.
//
// Mutations arrive from two independent paths (the API response and the
// live channel echo of the same call), in any order and possibly twice.
// Every Apply* method is therefore keyed by task id, idempotent, and never
// fails when its target is missing.
package taskstore

import (
	"sort"
	"sync"

	"github.com/idilsaglam/tasks/internal/model"
)

// Counts is the pending/completed partition of the collection.
type Counts struct {
	Pending   int
	Completed int
}

// Total is Pending + Completed.
func (c Counts) Total() int { return c.Pending + c.Completed }

type subscriber struct {
	id int
	fn func()
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	tasks []model.Task
	index map[string]int // id -> position in tasks
	// deleted remembers ids removed since the last ReplaceAll so a late
	// create echo cannot bring them back. Values are change sequence numbers.
	deleted map[string]uint64
	// touched records the sequence of the last create or update per id.
	touched map[string]uint64
	seq     uint64

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		index:   map[string]int{},
		deleted: map[string]uint64{},
		touched: map[string]uint64{},
	}
}

// ReplaceAll swaps the whole collection, typically after a full fetch.
// Duplicate ids keep their first position and their last value.
func (s *Store) ReplaceAll(tasks []model.Task) {
	s.mu.Lock()
	s.deleted = map[string]uint64{}
	s.reset(tasks, nil)
	s.mu.Unlock()
	s.notify()
}

// Mark returns a position in the change history. Take it before starting a
// fetch and pass it to ReplaceSince with the result.
func (s *Store) Mark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// ReplaceSince is ReplaceAll for a list whose fetch started at mark.
// Changes applied after mark are at least as new as the list, so they win:
// deleted ids stay deleted and created or updated tasks keep their current
// value.
func (s *Store) ReplaceSince(mark uint64, tasks []model.Task) {
	s.mu.Lock()
	type change struct {
		at uint64
		t  model.Task
	}
	var changes []change
	for id, at := range s.touched {
		if i, ok := s.index[id]; ok && at > mark {
			changes = append(changes, change{at, s.tasks[i]})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].at < changes[j].at })
	newer := make([]model.Task, len(changes))
	for i, c := range changes {
		newer[i] = c.t
	}

	deleted := map[string]uint64{}
	for id, at := range s.deleted {
		if at > mark {
			deleted[id] = at
		}
	}
	s.deleted = deleted
	s.reset(tasks, newer)
	s.mu.Unlock()
	s.notify()
}

// reset rebuilds the collection from tasks and then newer, skipping
// deleted ids. Callers hold s.mu.
func (s *Store) reset(tasks, newer []model.Task) {
	s.tasks = make([]model.Task, 0, len(tasks)+len(newer))
	s.index = make(map[string]int, len(tasks)+len(newer))
	s.touched = map[string]uint64{}
	for _, list := range [][]model.Task{tasks, newer} {
		for _, t := range list {
			if _, gone := s.deleted[t.ID]; gone {
				continue
			}
			if i, ok := s.index[t.ID]; ok {
				s.tasks[i] = t
				continue
			}
			s.index[t.ID] = len(s.tasks)
			s.tasks = append(s.tasks, t)
		}
	}
}

// ApplyCreated appends t unless its id is already present or was deleted.
func (s *Store) ApplyCreated(t model.Task) bool {
	s.mu.Lock()
	_, exists := s.index[t.ID]
	_, gone := s.deleted[t.ID]
	if exists || gone {
		s.mu.Unlock()
		return false
	}
	s.index[t.ID] = len(s.tasks)
	s.tasks = append(s.tasks, t)
	s.seq++
	s.touched[t.ID] = s.seq
	s.mu.Unlock()
	s.notify()
	return true
}

// ApplyUpdated replaces the entry with t's id. Unknown ids are ignored: the
// task may have been deleted concurrently.
func (s *Store) ApplyUpdated(t model.Task) bool {
	s.mu.Lock()
	i, ok := s.index[t.ID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.tasks[i] = t
	s.seq++
	s.touched[t.ID] = s.seq
	s.mu.Unlock()
	s.notify()
	return true
}

// ApplyCompleted is ApplyUpdated; completion is a field replacement.
func (s *Store) ApplyCompleted(t model.Task) bool { return s.ApplyUpdated(t) }

// ApplyDeleted removes id if present.
func (s *Store) ApplyDeleted(id string) bool {
	s.mu.Lock()
	s.seq++
	s.deleted[id] = s.seq
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	delete(s.index, id)
	delete(s.touched, id)
	for j := i; j < len(s.tasks); j++ {
		s.index[s.tasks[j].ID] = j
	}
	s.mu.Unlock()
	s.notify()
	return true
}

// Tasks returns an ordered copy of the collection.
func (s *Store) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Get looks a task up by id.
func (s *Store) Get(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return model.Task{}, false
	}
	return s.tasks[i], true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Counts partitions the current collection by status. It is computed on
// every call, never stored.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Counts
	for _, t := range s.tasks {
		if t.Done() {
			c.Completed++
		} else {
			c.Pending++
		}
	}
	return c
}

// Subscribe registers fn to run after every mutation that changed the
// collection. Subscribers run in registration order, outside the store lock.
// The returned func unregisters fn.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.fn()
	}
}
