package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/segmentio/ksuid"
	_ "modernc.org/sqlite"

	"github.com/ayanobu/nicofetch/internal/domain"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "nicofetch.db"
	}

	// Ensure the database directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Ping makes sure the file is actually accessible and the DSN is valid
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	d, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return err
	}

	// This driver works with modernc.org/sqlite as well
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Record(ctx context.Context, rec *domain.DownloadRecord) error {
	if rec.ID == "" {
		rec.ID = ksuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var dbo downloadDBO
	dbo.FromDomain(rec)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (id, video_id, title, path, bytes, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			bytes = excluded.bytes,
			status = excluded.status,
			completed_at = excluded.completed_at`,
		dbo.ID, dbo.VideoID, dbo.Title, dbo.Path, dbo.Bytes, dbo.Status, dbo.CreatedAt, dbo.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert download %s: %w", rec.VideoID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkComplete(ctx context.Context, videoID string, bytes int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE downloads SET status = ?, bytes = ?, completed_at = ? WHERE video_id = ?",
		string(domain.StatusComplete), bytes, time.Now().UTC(), videoID)
	return err
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, videoID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE downloads SET status = ? WHERE video_id = ?",
		string(domain.StatusFailed), videoID)
	return err
}

func (s *SQLiteStore) IsComplete(ctx context.Context, videoID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM downloads WHERE video_id = ? AND status = ? LIMIT 1",
		videoID, string(domain.StatusComplete)).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*domain.DownloadRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, video_id, title, path, bytes, status, created_at, completed_at
		FROM downloads
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DownloadRecord
	for rows.Next() {
		var dbo downloadDBO
		if err := rows.Scan(&dbo.ID, &dbo.VideoID, &dbo.Title, &dbo.Path, &dbo.Bytes, &dbo.Status, &dbo.CreatedAt, &dbo.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, dbo.ToDomain())
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
