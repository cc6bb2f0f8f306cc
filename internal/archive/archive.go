// Package archive persists accepted telemetry records to SQLite for offline
// analysis. It is a write-only sink from the dashboard's point of view: the
// fusion store never reads archived data back, so a restart always begins
// from an empty live view.
package archive

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/fusion.report/internal/telemetry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Archive is a SQLite-backed telemetry sink. Every row is tagged with the
// run id of the process that wrote it, so captures from separate sessions
// stay distinguishable in one database file.
type Archive struct {
	db     *sql.DB
	runID  string
	insert *sql.Stmt
}

// Open opens (creating if necessary) the archive database at path and applies
// any pending schema migrations.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	insert, err := db.Prepare(`INSERT INTO telemetry
		(run_id, entity_id, x, y, z, battery, status, ts_ms, received_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare archive insert: %w", err)
	}

	return &Archive{
		db:     db,
		runID:  uuid.NewString(),
		insert: insert,
	}, nil
}

// migrateUp applies all pending migrations from the embedded sources.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	// Note: we don't close m because it would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// RunID returns the identifier tagging every row written by this process.
func (a *Archive) RunID() string {
	return a.runID
}

// RecordTelemetry appends one accepted record with its local receive instant.
func (a *Archive) RecordTelemetry(rec telemetry.TelemetryRecord, receivedAt time.Time) error {
	_, err := a.insert.Exec(
		a.runID, rec.ID,
		rec.X, rec.Y, rec.Z,
		rec.Battery, rec.Status, rec.TsMs,
		receivedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry row: %w", err)
	}
	return nil
}

// CountRecords returns the number of rows written by this run.
func (a *Archive) CountRecords() (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM telemetry WHERE run_id = ?`, a.runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count telemetry rows: %w", err)
	}
	return n, nil
}

// Close releases the prepared statement and the database handle.
func (a *Archive) Close() error {
	if a.insert != nil {
		a.insert.Close()
	}
	return a.db.Close()
}
