package task

import (
	"sort"
	"sync"
)

// Registry is the keyed store of task records.
//
// Operations on one name are serialized by that entry's lock; different
// names proceed independently. Mutations run against a private copy that is
// swapped in only when the mutation succeeds, and readers always receive
// copies.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	task *Task // nil while the creating commit runs
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Create reserves t.Name, runs commit, and stores t only if commit succeeds.
// The name stays reserved while commit runs, so a concurrent Create of the
// same name fails with ErrTaskAlreadyExists.
func (r *Registry) Create(t *Task, commit func(*Task) error) error {
	e := &entry{}
	e.mu.Lock()
	defer e.mu.Unlock()

	r.mu.Lock()
	if _, ok := r.entries[t.Name]; ok {
		r.mu.Unlock()
		return ErrTaskAlreadyExists
	}
	r.entries[t.Name] = e
	r.mu.Unlock()

	work := t.Clone()
	if commit != nil {
		if err := commit(work); err != nil {
			r.mu.Lock()
			delete(r.entries, t.Name)
			r.mu.Unlock()
			return err
		}
	}
	e.task = work
	return nil
}

// Update applies fn to a copy of the named task and commits the copy if fn
// returns nil. It returns a snapshot of the committed record.
func (r *Registry) Update(name string, fn func(*Task) error) (*Task, error) {
	e := r.lookup(name)
	if e == nil {
		return nil, ErrTaskNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.task == nil {
		return nil, ErrTaskNotFound
	}

	work := e.task.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	e.task = work
	return work.Clone(), nil
}

// Get returns a snapshot of the named task.
func (r *Registry) Get(name string) (*Task, error) {
	e := r.lookup(name)
	if e == nil {
		return nil, ErrTaskNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.task == nil {
		return nil, ErrTaskNotFound
	}
	return e.task.Clone(), nil
}

// List returns snapshots of every task sorted by name.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]*Task, 0, len(names))
	for _, name := range names {
		if t, err := r.Get(name); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of names held, including reservations in flight.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) lookup(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}
