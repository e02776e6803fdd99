package api

import (
	"context"
	"errors"
)

// Store sentinel errors.
var (
	// ErrNotFound is returned when a project or diagram does not exist
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned by CompareAndSave when the stored
	// version no longer matches the expected one. Callers retry with a
	// fresh read; it is not surfaced to clients as an error.
	ErrVersionConflict = errors.New("version conflict")
)

// ProjectStore provides CRUD persistence for projects. Creating a project
// creates its default diagram in the same transaction.
type ProjectStore interface {
	List(ctx context.Context) ([]Project, error)
	Get(ctx context.Context, id string) (*Project, error)
	Create(ctx context.Context, project *Project) error
	Delete(ctx context.Context, id string) error
}

// DiagramStore is the persistence collaborator consumed by the sync engine.
// It is the sole authority for version allocation: CompareAndSave must
// guarantee that two concurrent writers for the same project never receive
// the same version.
type DiagramStore interface {
	// Load returns the current snapshot for a project, or ErrNotFound.
	Load(ctx context.Context, projectID string) (*Diagram, error)
	// CompareAndSave atomically applies the patch and allocates the next
	// version, but only if the stored version still equals
	// expectedVersion; otherwise it returns ErrVersionConflict and stores
	// nothing. Returns the newly allocated version on success.
	CompareAndSave(ctx context.Context, projectID string, patch DiagramPatch, expectedVersion int64) (int64, error)
}
