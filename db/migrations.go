package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}

func migrationsFor(driver string) ([]Migration, error) {
	var list []Migration
	switch driver {
	case DriverPostgres:
		list = postgresMigrations
	case DriverSQLite:
		list = sqliteMigrations
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	sorted := make([]Migration, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	return sorted, nil
}

// Migrate runs all pending migrations for driver
func Migrate(db *sql.DB, driver string) error {
	migrations, err := migrationsFor(driver)
	if err != nil {
		return err
	}

	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		if err := runMigration(db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
		slog.Default().Info("migration applied successfully", "driver", driver, "version", m.Version, "name", m.Name)
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// getCurrentVersion returns the current migration version
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration applies m and records it in one transaction
func runMigration(db *sql.DB, m Migration) error {
	return withTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(m.Up); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}

// Rollback reverts the most recently applied migration
func Rollback(db *sql.DB, driver string) error {
	migrations, err := migrationsFor(driver)
	if err != nil {
		return err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	i := sort.Search(len(migrations), func(i int) bool { return migrations[i].Version >= currentVersion })
	if i == len(migrations) || migrations[i].Version != currentVersion {
		return fmt.Errorf("migration %d not found", currentVersion)
	}
	target := migrations[i]

	err = withTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(target.Down); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = $1", target.Version); err != nil {
			return fmt.Errorf("failed to remove migration record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Default().Info("migration rolled back", "driver", driver, "version", target.Version, "name", target.Name)
	return nil
}

func withTx(db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetMigrationStatus returns the current migration status
func GetMigrationStatus(db *sql.DB, driver string) ([]MigrationStatus, error) {
	migrations, err := migrationsFor(driver)
	if err != nil {
		return nil, err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		status = append(status, MigrationStatus{
			Version: m.Version,
			Name:    m.Name,
			Applied: m.Version <= currentVersion,
		})
	}
	return status, nil
}
