package store

import (
	"context"
	"errors"
	"time"

	"github.com/ykvlv/weather-bot/internal/domain"
)

// ErrNotFound is returned when no subscriber exists for a chat.
var ErrNotFound = errors.New("subscriber not found")

// Repo defines storage operations for subscribers.
//
// Writes are last-write-wins per chat, except last_sent_at which never
// moves backwards: an upsert carrying an older (or nil) value keeps the
// stored one. Save is the delivery write path and leaves the settings of an
// existing subscriber untouched.
type Repo interface {
	UpsertSubscriber(ctx context.Context, s *domain.Subscriber) error
	GetSubscriber(ctx context.Context, chatID int64) (*domain.Subscriber, error)
	FetchAll(ctx context.Context) ([]domain.Subscriber, error)
	Save(ctx context.Context, s domain.Subscriber) error
	SetEnabled(ctx context.Context, chatID int64, enabled bool) error
	ListChatIDs(ctx context.Context) ([]int64, error)
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverJSON     = "json"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresURL string
	JSONPath    string
}

// Open returns the repository for the configured driver.
func Open(ctx context.Context, opts Options) (Repo, error) {
	var (
		repo Repo
		err  error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		repo, err = OpenSQLite(ctx, opts.SQLitePath)
	case DriverPostgres:
		repo, err = OpenPostgres(ctx, opts.PostgresURL)
	case DriverJSON:
		repo, err = OpenJSONFile(opts.JSONPath)
	default:
		return nil, errors.New("unknown store driver: " + opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// stamp fills bookkeeping timestamps before a write.
func stamp(s *domain.Subscriber, now time.Time) {
	now = now.UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}
