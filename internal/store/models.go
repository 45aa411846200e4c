package store

import (
	"database/sql"
	"time"

	"github.com/ykvlv/weather-bot/internal/domain"
)

func toNullInt64(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromNullInt64(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0).UTC()
	return &t
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// subscriberColumns is the column order scanSubscriber expects.
const subscriberColumns = `chat_id, created_at, updated_at, enabled, city, notify_at, tz, last_sent_at`

// scanSubscriber reads one row in subscriberColumns order. Timestamps are unix seconds.
func scanSubscriber(row rowScanner) (domain.Subscriber, error) {
	var (
		s          domain.Subscriber
		createdAt  int64
		updatedAt  int64
		enabledInt int
		lastNS     sql.NullInt64
	)
	if err := row.Scan(
		&s.ChatID, &createdAt, &updatedAt, &enabledInt,
		&s.City, &s.NotifyAt, &s.TZ, &lastNS,
	); err != nil {
		return domain.Subscriber{}, err
	}
	s.Enabled = enabledInt != 0
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	s.LastSentAt = fromNullInt64(lastNS)
	return s, nil
}

// scanAll drains rows into subscribers.
func scanAll(rows *sql.Rows) ([]domain.Subscriber, error) {
	defer rows.Close()

	var res []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// boolToInt converts a boolean to 1/0 for SQL.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
