package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/segmentio/ksuid"

	"github.com/ayanobu/nicofetch/internal/domain"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresStore backs history with a shared database, for setups where
// several machines download against one dedup ledger.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.runMigrations(); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) runMigrations() error {
	d, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return err
	}

	driver, err := migratepgx.WithInstance(s.db, &migratepgx.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", d, "pgx", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, rec *domain.DownloadRecord) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
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

func (s *PostgresStore) MarkComplete(ctx context.Context, videoID string, bytes int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE downloads SET status = $1, bytes = $2, completed_at = $3 WHERE video_id = $4",
		string(domain.StatusComplete), bytes, time.Now().UTC(), videoID)
	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, videoID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE downloads SET status = $1 WHERE video_id = $2",
		string(domain.StatusFailed), videoID)
	return err
}

func (s *PostgresStore) IsComplete(ctx context.Context, videoID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM downloads WHERE video_id = $1 AND status = $2 LIMIT 1",
		videoID, string(domain.StatusComplete)).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]*domain.DownloadRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, video_id, title, path, bytes, status, created_at, completed_at
		FROM downloads
		ORDER BY created_at DESC
		LIMIT $1`, limit)
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

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
