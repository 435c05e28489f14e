package pending

import (
	"sync"
)

// GoVersionChange is a pending change of a project's go directive
type GoVersionChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// LibraryChange is a pending change of one module dependency
type LibraryChange struct {
	Name       string `json:"name"`
	From       string `json:"from"`
	To         string `json:"to"`
	UpdateType string `json:"update_type,omitempty"`
}

// ProjectChanges holds every pending edit for a single project.
// A nil GoVersion means the go version is unedited.
type ProjectChanges struct {
	ProjectID int              `json:"project_id"`
	GoVersion *GoVersionChange `json:"go_version,omitempty"`
	Libraries []LibraryChange  `json:"libraries"`
}

// Empty reports whether the record carries no edits
func (p *ProjectChanges) Empty() bool {
	return p.GoVersion == nil && len(p.Libraries) == 0
}

// Clone returns a deep copy
func (p *ProjectChanges) Clone() ProjectChanges {
	out := ProjectChanges{
		ProjectID: p.ProjectID,
		Libraries: make([]LibraryChange, len(p.Libraries)),
	}
	copy(out.Libraries, p.Libraries)
	if p.GoVersion != nil {
		gv := *p.GoVersion
		out.GoVersion = &gv
	}
	return out
}

func (p *ProjectChanges) libraryIndex(name string) int {
	for i := range p.Libraries {
		if p.Libraries[i].Name == name {
			return i
		}
	}
	return -1
}

// NameResolver resolves a project id to a display name
type NameResolver interface {
	ProjectName(projectID int) (string, bool)
}

// Listener receives the recomputed summary after every mutation
type Listener func(AggregateView)

// Store is the in-memory mapping from project id to pending changes.
// Projects keep the position of their first edit.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	records   map[int]*ProjectChanges
	order     []int
	names     NameResolver
	listeners []Listener
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithNameResolver sets the resolver used for project display names
func WithNameResolver(names NameResolver) StoreOption {
	return func(s *Store) {
		s.names = names
	}
}

// NewStore creates an empty store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		records: make(map[int]*ProjectChanges),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener for summary updates
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Get returns a copy of the pending changes for a project
func (s *Store) Get(projectID int) (ProjectChanges, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[projectID]
	if !ok {
		return ProjectChanges{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of projects with pending changes
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Snapshot returns copies of all records in insertion order
func (s *Store) Snapshot() []ProjectChanges {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Clear drops every pending change of a project
func (s *Store) Clear(projectID int) {
	s.mu.Lock()
	s.deleteLocked(projectID)
	s.unlockAndNotify()
}

// ClearAll drops every pending change of every project
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.records = make(map[int]*ProjectChanges)
	s.order = nil
	s.unlockAndNotify()
}

// Summary computes the aggregate view of the current state
func (s *Store) Summary() AggregateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.snapshotLocked(), s.names)
}

func (s *Store) snapshotLocked() []ProjectChanges {
	out := make([]ProjectChanges, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out
}

func (s *Store) deleteLocked(projectID int) {
	if _, ok := s.records[projectID]; !ok {
		return
	}
	delete(s.records, projectID)
	for i, id := range s.order {
		if id == projectID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// unlockAndNotify must be called with mu held. Listeners run under notifyMu
// so they observe views in mutation order; they must not call back into the
// store.
func (s *Store) unlockAndNotify() {
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	view := Summarize(s.snapshotLocked(), s.names)

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, l := range listeners {
		l(view)
	}
}
