package db

import (
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/umlforge/umlforge/internal/slogging"
)

// MigrationConfig holds the configuration for database migrations
type MigrationConfig struct {
	MigrationsPath string
	DatabaseName   string
}

func (p *PostgresDB) migrator(cfg MigrationConfig) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(p.db, &postgres.Config{
		DatabaseName: cfg.DatabaseName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	absPath, err := filepath.Abs(cfg.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", absPath), cfg.DatabaseName, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return migrator, nil
}

// RunMigrations applies all pending migrations
func (p *PostgresDB) RunMigrations(cfg MigrationConfig) error {
	migrator, err := p.migrator(cfg)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slogging.Get().Info("Database migrations applied")
	return nil
}

// MigrateDown rolls back all migrations
func (p *PostgresDB) MigrateDown(cfg MigrationConfig) error {
	migrator, err := p.migrator(cfg)
	if err != nil {
		return err
	}
	if err := migrator.Down(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	slogging.Get().Info("Database migrations rolled back")
	return nil
}
