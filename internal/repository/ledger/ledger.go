package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Register the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// Entry is one issued archive.
type Entry struct {
	SerialNumber        string
	Slug                string
	AuthenticationToken string
	ArchiveChecksum     string
	RunID               string
	GeneratorVersion    string
	IssuedAt            time.Time
}

// Repository defines persistence operations for issued passes.
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	LatestBySlug(ctx context.Context, slug string) (*Entry, error)
	ListByRun(ctx context.Context, runID string) ([]*Entry, error)
}

// ErrNotFound is returned when no pass was issued for the slug yet.
var ErrNotFound = errors.New("issued pass not found")

//go:embed migrations/*.sql
var migrations embed.FS

const (
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	dirMode    = 0o750
	busyMillis = 5000
)

// SQLiteRepository stores the ledger in a SQLite database file.
type SQLiteRepository struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and applies pending migrations.
func Open(ctx context.Context, path string) (*SQLiteRepository, error) {
	path = filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	// A single connection serialises writes from concurrent workers.
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d;", busyMillis)); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("configure ledger: %w", err)
	}

	if err = applyMigrations(db); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func applyMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return err
	}

	if err = instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// Close releases the database.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}

	return r.db.Close()
}

// Record stores an issued archive. A zero IssuedAt is set to now.
func (r *SQLiteRepository) Record(ctx context.Context, entry *Entry) error {
	if entry.IssuedAt.IsZero() {
		entry.IssuedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO issued_passes
			(serial_number, slug, authentication_token, archive_checksum, run_id, generator_version, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SerialNumber,
		entry.Slug,
		entry.AuthenticationToken,
		entry.ArchiveChecksum,
		entry.RunID,
		entry.GeneratorVersion,
		entry.IssuedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record issued pass %s: %w", entry.Slug, err)
	}

	return nil
}

// LatestBySlug returns the most recently recorded archive for slug.
func (r *SQLiteRepository) LatestBySlug(ctx context.Context, slug string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT serial_number, slug, authentication_token, archive_checksum, run_id, generator_version, issued_at
		FROM issued_passes
		WHERE slug = ?
		ORDER BY id DESC
		LIMIT 1`, slug)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("load issued pass %s: %w", slug, err)
	}

	return entry, nil
}

// ListByRun returns the archives recorded by one run in insertion order.
func (r *SQLiteRepository) ListByRun(ctx context.Context, runID string) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT serial_number, slug, authentication_token, archive_checksum, run_id, generator_version, issued_at
		FROM issued_passes
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list issued passes: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var entries []*Entry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issued pass: %w", err)
		}

		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list issued passes: %w", err)
	}

	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		entry    Entry
		issuedAt string
	)

	err := s.Scan(
		&entry.SerialNumber,
		&entry.Slug,
		&entry.AuthenticationToken,
		&entry.ArchiveChecksum,
		&entry.RunID,
		&entry.GeneratorVersion,
		&issuedAt,
	)
	if err != nil {
		return nil, err
	}

	if entry.IssuedAt, err = time.Parse(timeLayout, issuedAt); err != nil {
		return nil, fmt.Errorf("parse issued_at: %w", err)
	}

	return &entry, nil
}
