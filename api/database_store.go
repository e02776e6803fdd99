package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/umlforge/umlforge/internal/slogging"
)

// DatabaseStore is the PostgreSQL-backed implementation of ProjectStore and
// DiagramStore. Version allocation happens inside a single UPDATE guarded by
// the expected version, so it stays correct across processes.
type DatabaseStore struct {
	db *sql.DB
}

// NewDatabaseStore creates a new database-backed store
func NewDatabaseStore(database *sql.DB) *DatabaseStore {
	return &DatabaseStore{db: database}
}

// List returns all projects ordered by creation time
func (s *DatabaseStore) List(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, package_base, created_at, modified_at, last_edited_at
		FROM projects
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []Project
	for rows.Next() {
		var p Project
		var packageBase sql.NullString
		var lastEdited sql.NullTime
		if err := rows.Scan(&p.Id, &p.Name, &packageBase, &p.CreatedAt, &p.ModifiedAt, &lastEdited); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.PackageBase = packageBase.String
		if lastEdited.Valid {
			t := lastEdited.Time
			p.LastEditedAt = &t
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Get returns a project by id
func (s *DatabaseStore) Get(ctx context.Context, id string) (*Project, error) {
	var p Project
	var packageBase sql.NullString
	var lastEdited sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, package_base, created_at, modified_at, last_edited_at
		FROM projects
		WHERE id = $1`, id).Scan(&p.Id, &p.Name, &packageBase, &p.CreatedAt, &p.ModifiedAt, &lastEdited)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	p.PackageBase = packageBase.String
	if lastEdited.Valid {
		t := lastEdited.Time
		p.LastEditedAt = &t
	}
	return &p, nil
}

// Create stores a project and its default diagram in one transaction
func (s *DatabaseStore) Create(ctx context.Context, project *Project) error {
	if project.Id == uuid.Nil {
		project.Id = uuid.New()
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.ModifiedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, package_base, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5)`,
		project.Id, project.Name, project.PackageBase, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	// Diagram shares the project's primary key (1:1 ownership)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO diagrams (id, name, nodes, edges, version, created_at, modified_at)
		VALUES ($1, $2, '[]', '[]', 0, $3, $4)`,
		project.Id, "Diagram for "+project.Name, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert default diagram: %w", err)
	}

	return tx.Commit()
}

// Delete removes a project; the diagram row is removed by the FK cascade
func (s *DatabaseStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Load returns the diagram snapshot for a project
func (s *DatabaseStore) Load(ctx context.Context, projectID string) (*Diagram, error) {
	var d Diagram
	var viewport sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, nodes, edges, viewport, version, created_at, modified_at
		FROM diagrams
		WHERE id = $1`, projectID).Scan(
		&d.Id, &d.Name, &d.Nodes, &d.Edges, &viewport, &d.Version, &d.CreatedAt, &d.ModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load diagram %s: %w", projectID, err)
	}
	if viewport.Valid {
		vp := viewport.String
		d.Viewport = &vp
	}
	return &d, nil
}

// CompareAndSave applies the patch and allocates the next version in a
// single guarded UPDATE. COALESCE keeps stored values for absent fields, and
// the version predicate makes the increment atomic across concurrent
// writers: at most one of them matches the row.
func (s *DatabaseStore) CompareAndSave(ctx context.Context, projectID string, patch DiagramPatch, expectedVersion int64) (int64, error) {
	var newVersion int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE diagrams
		SET name        = COALESCE($1, name),
		    nodes       = COALESCE($2, nodes),
		    edges       = COALESCE($3, edges),
		    viewport    = COALESCE($4, viewport),
		    version     = version + 1,
		    modified_at = $5
		WHERE id = $6 AND version = $7
		RETURNING version`,
		patch.Name, patch.Nodes, patch.Edges, patch.Viewport,
		time.Now().UTC(), projectID, expectedVersion).Scan(&newVersion)

	if errors.Is(err, sql.ErrNoRows) {
		// Either the diagram is gone or another writer won the version
		// race; distinguish so callers know whether to retry.
		var exists bool
		checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM diagrams WHERE id = $1)`, projectID).Scan(&exists)
		if checkErr != nil {
			return 0, fmt.Errorf("failed to check diagram %s: %w", projectID, checkErr)
		}
		if !exists {
			return 0, ErrNotFound
		}
		slogging.Get().Debug("Optimistic lock collision on diagram %s at version %d", projectID, expectedVersion)
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to save diagram %s: %w", projectID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE projects SET last_edited_at = $1, modified_at = $1 WHERE id = $2`,
		time.Now().UTC(), projectID)
	if err != nil {
		// The snapshot committed; a failed bookkeeping update is not an
		// error worth failing the edit over.
		slogging.Get().Warn("Failed to update last_edited_at for project %s: %v", projectID, err)
	}

	return newVersion, nil
}
