package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of ProjectStore and
// DiagramStore with the same optimistic-lock contract as the database
// store. It backs tests and single-node development mode.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*Project
	diagrams map[string]*Diagram
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*Project),
		diagrams: make(map[string]*Diagram),
	}
}

// List returns all projects
func (s *MemoryStore) List(ctx context.Context) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, *p)
	}
	return projects, nil
}

// Get returns a project by id
func (s *MemoryStore) Get(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

// Create stores a project and its default diagram
func (s *MemoryStore) Create(ctx context.Context, project *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if project.Id == uuid.Nil {
		project.Id = uuid.New()
	}
	project.CreatedAt = now
	project.ModifiedAt = now

	copied := *project
	s.projects[project.Id.String()] = &copied
	s.diagrams[project.Id.String()] = &Diagram{
		Id:         project.Id,
		Name:       "Diagram for " + project.Name,
		Nodes:      "[]",
		Edges:      "[]",
		Version:    0,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	return nil
}

// Delete removes a project and its diagram
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return ErrNotFound
	}
	delete(s.projects, id)
	delete(s.diagrams, id)
	return nil
}

// Load returns the diagram snapshot for a project
func (s *MemoryStore) Load(ctx context.Context, projectID string) (*Diagram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.diagrams[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *d
	if d.Viewport != nil {
		vp := *d.Viewport
		copied.Viewport = &vp
	}
	return &copied, nil
}

// CompareAndSave applies the patch and bumps the version if the stored
// version still matches expectedVersion
func (s *MemoryStore) CompareAndSave(ctx context.Context, projectID string, patch DiagramPatch, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.diagrams[projectID]
	if !ok {
		return 0, ErrNotFound
	}
	if d.Version != expectedVersion {
		return 0, ErrVersionConflict
	}

	if patch.Name != nil {
		d.Name = *patch.Name
	}
	if patch.Nodes != nil {
		d.Nodes = *patch.Nodes
	}
	if patch.Edges != nil {
		d.Edges = *patch.Edges
	}
	if patch.Viewport != nil {
		vp := *patch.Viewport
		d.Viewport = &vp
	}
	d.Version++
	d.ModifiedAt = time.Now().UTC()
	return d.Version, nil
}
