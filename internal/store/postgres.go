package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"

	"github.com/ykvlv/weather-bot/internal/domain"
)

// PostgresRepo implements Repo on PostgreSQL. Timestamps are stored as
// unix seconds so both SQL backends share scanning code.
type PostgresRepo struct{ db *sql.DB }

// OpenPostgres connects to dbURL and creates the schema if needed.
func OpenPostgres(ctx context.Context, dbURL string) (*PostgresRepo, error) {
	if dbURL == "" {
		return nil, errors.New("postgres: empty database url")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := initPostgres(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return &PostgresRepo{db: db}, nil
}

func initPostgres(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS subscribers (
			chat_id      BIGINT PRIMARY KEY,
			created_at   BIGINT NOT NULL,
			updated_at   BIGINT NOT NULL,
			enabled      INTEGER NOT NULL DEFAULT 0,
			city         TEXT NOT NULL DEFAULT '',
			notify_at    TEXT NOT NULL DEFAULT '',
			tz           TEXT NOT NULL DEFAULT '',
			last_sent_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscribers_enabled ON subscribers(enabled)`,
	}
	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("execute %q: %w", q, err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

// UpsertSubscriber inserts or updates a subscriber. GREATEST ignores NULLs,
// which keeps last_sent_at monotonic.
func (r *PostgresRepo) UpsertSubscriber(ctx context.Context, s *domain.Subscriber) error {
	if s == nil {
		return errors.New("nil subscriber")
	}
	stamp(s, time.Now())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (
			chat_id, created_at, updated_at, enabled, city, notify_at, tz, last_sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chat_id) DO UPDATE SET
			updated_at   = EXCLUDED.updated_at,
			enabled      = EXCLUDED.enabled,
			city         = EXCLUDED.city,
			notify_at    = EXCLUDED.notify_at,
			tz           = EXCLUDED.tz,
			last_sent_at = GREATEST(subscribers.last_sent_at, EXCLUDED.last_sent_at)`,
		s.ChatID, s.CreatedAt.Unix(), s.UpdatedAt.Unix(), boolToInt(s.Enabled),
		s.City, s.NotifyAt, s.TZ, toNullInt64(s.LastSentAt),
	)
	return err
}

// Save records delivery state. An existing row only has last_sent_at
// advanced, so settings changed since s was read are kept.
func (r *PostgresRepo) Save(ctx context.Context, s domain.Subscriber) error {
	stamp(&s, time.Now())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (
			chat_id, created_at, updated_at, enabled, city, notify_at, tz, last_sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chat_id) DO UPDATE SET
			updated_at   = EXCLUDED.updated_at,
			last_sent_at = GREATEST(subscribers.last_sent_at, EXCLUDED.last_sent_at)`,
		s.ChatID, s.CreatedAt.Unix(), s.UpdatedAt.Unix(), boolToInt(s.Enabled),
		s.City, s.NotifyAt, s.TZ, toNullInt64(s.LastSentAt),
	)
	return err
}

// GetSubscriber returns a subscriber by chatID or ErrNotFound.
func (r *PostgresRepo) GetSubscriber(ctx context.Context, chatID int64) (*domain.Subscriber, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE chat_id = $1`, chatID)
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
func (r *PostgresRepo) FetchAll(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// SetEnabled toggles the digest flag for a subscriber.
func (r *PostgresRepo) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers
		SET enabled = $1, updated_at = $2
		WHERE chat_id = $3`,
		boolToInt(enabled), time.Now().UTC().Unix(), chatID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// ListChatIDs returns all known chat ids.
func (r *PostgresRepo) ListChatIDs(ctx context.Context) ([]int64, error) {
	return queryChatIDs(ctx, r.db, `SELECT chat_id FROM subscribers ORDER BY chat_id`)
}
