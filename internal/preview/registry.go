// Package preview holds the ephemeral debug registry for in-flight
// submission previews.
package preview

import (
	"container/list"
	"sync"
)

// DefaultMaxEntries bounds the registry when no capacity is configured.
const DefaultMaxEntries = 50

// Entry is the debugging metadata kept for one in-flight submission.
type Entry struct {
	RepositoryID       int64
	RepositoryFullName string
	SummaryModel       string
	RevisionModel      string
}

// Registry is a process-local, capacity-bounded cache mapping a submission
// id to its debug entry. Least-recently-used entries are evicted first. It
// is lost on restart by design; nothing may rely on it for correctness.
type Registry struct {
	mu      sync.Mutex
	limit   int
	order   *list.List               // front = most recently used
	entries map[string]*list.Element // submission id -> element holding *node
}

type node struct {
	id    string
	entry Entry
}

// NewRegistry creates a Registry holding at most maxEntries entries.
func NewRegistry(maxEntries int) *Registry {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	return &Registry{
		limit:   maxEntries,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Save inserts or updates the entry for a submission id, marks it most
// recently used, and trims the registry to capacity.
func (r *Registry) Save(submissionID string, repositoryID int64, fullName, summaryModel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.entries[submissionID]; ok {
		n := el.Value.(*node)
		n.entry.RepositoryID = repositoryID
		n.entry.RepositoryFullName = fullName
		n.entry.SummaryModel = summaryModel
		r.order.MoveToFront(el)
		return
	}

	el := r.order.PushFront(&node{
		id: submissionID,
		entry: Entry{
			RepositoryID:       repositoryID,
			RepositoryFullName: fullName,
			SummaryModel:       summaryModel,
		},
	})
	r.entries[submissionID] = el

	for r.order.Len() > r.limit {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		delete(r.entries, oldest.Value.(*node).id)
	}
}

// SetRevisionModel records the model used for the latest revision.
// No-op if the submission id is unknown.
func (r *Registry) SetRevisionModel(submissionID, modelName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.entries[submissionID]
	if !ok {
		return
	}
	el.Value.(*node).entry.RevisionModel = modelName
	r.order.MoveToFront(el)
}

// Get returns the entry for a submission id and marks it most recently
// used. The second return value reports whether it was found.
func (r *Registry) Get(submissionID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.entries[submissionID]
	if !ok {
		return Entry{}, false
	}
	r.order.MoveToFront(el)
	return el.Value.(*node).entry, true
}

// Discard removes the entry for a submission id, if present.
func (r *Registry) Discard(submissionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.entries[submissionID]
	if !ok {
		return
	}
	r.order.Remove(el)
	delete(r.entries, submissionID)
}

// Len returns the number of entries currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
