package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/ykvlv/weather-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single-writer engine: one connection serializes the scheduler and
	// chat handlers without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// UpsertSubscriber inserts or updates a subscriber's settings.
// last_sent_at only ever moves forward.
func (r *SQLiteRepo) UpsertSubscriber(ctx context.Context, s *domain.Subscriber) error {
	if s == nil {
		return errors.New("nil subscriber")
	}
	stamp(s, time.Now())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (
			chat_id, created_at, updated_at, enabled, city, notify_at, tz, last_sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			updated_at   = excluded.updated_at,
			enabled      = excluded.enabled,
			city         = excluded.city,
			notify_at    = excluded.notify_at,
			tz           = excluded.tz,
			last_sent_at = CASE
				WHEN subscribers.last_sent_at IS NULL THEN excluded.last_sent_at
				WHEN excluded.last_sent_at IS NULL THEN subscribers.last_sent_at
				ELSE MAX(subscribers.last_sent_at, excluded.last_sent_at)
			END`,
		s.ChatID, s.CreatedAt.Unix(), s.UpdatedAt.Unix(), boolToInt(s.Enabled),
		s.City, s.NotifyAt, s.TZ, toNullInt64(s.LastSentAt),
	)
	return err
}

// Save records delivery state. An existing row only has last_sent_at
// advanced, so settings changed since s was read are kept.
func (r *SQLiteRepo) Save(ctx context.Context, s domain.Subscriber) error {
	stamp(&s, time.Now())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (
			chat_id, created_at, updated_at, enabled, city, notify_at, tz, last_sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			updated_at   = excluded.updated_at,
			last_sent_at = CASE
				WHEN subscribers.last_sent_at IS NULL THEN excluded.last_sent_at
				WHEN excluded.last_sent_at IS NULL THEN subscribers.last_sent_at
				ELSE MAX(subscribers.last_sent_at, excluded.last_sent_at)
			END`,
		s.ChatID, s.CreatedAt.Unix(), s.UpdatedAt.Unix(), boolToInt(s.Enabled),
		s.City, s.NotifyAt, s.TZ, toNullInt64(s.LastSentAt),
	)
	return err
}

// GetSubscriber returns a subscriber by chatID or ErrNotFound.
func (r *SQLiteRepo) GetSubscriber(ctx context.Context, chatID int64) (*domain.Subscriber, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE chat_id = ?`, chatID)
	s, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchAll returns every stored subscriber ordered by chat id.
func (r *SQLiteRepo) FetchAll(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// SetEnabled toggles the digest flag for a subscriber.
func (r *SQLiteRepo) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers
		SET enabled = ?, updated_at = ?
		WHERE chat_id = ?`,
		boolToInt(enabled), time.Now().UTC().Unix(), chatID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// ListChatIDs returns all known chat ids.
func (r *SQLiteRepo) ListChatIDs(ctx context.Context) ([]int64, error) {
	return queryChatIDs(ctx, r.db, `SELECT chat_id FROM subscribers ORDER BY chat_id`)
}

func queryChatIDs(ctx context.Context, db *sql.DB, query string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// mustAffect maps a no-op UPDATE to ErrNotFound.
func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
