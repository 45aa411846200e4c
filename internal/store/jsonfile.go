package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ykvlv/weather-bot/internal/domain"
)

// jsonSubscriber is the on-disk record layout.
type jsonSubscriber struct {
	ChatID     int64      `json:"chat_id"`
	Enabled    bool       `json:"enabled"`
	City       string     `json:"city"`
	NotifyAt   string     `json:"notify_at"`
	TZ         string     `json:"tz"`
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// JSONFileRepo keeps all subscribers in a single JSON array on disk.
// The whole file is rewritten on every change (temp file + rename).
type JSONFileRepo struct {
	path string

	mu   sync.Mutex
	subs map[int64]domain.Subscriber
}

// OpenJSONFile loads path, creating its directory if necessary.
// A missing file is treated as an empty store.
func OpenJSONFile(path string) (*JSONFileRepo, error) {
	if path == "" {
		return nil, errors.New("json store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	r := &JSONFileRepo{path: path, subs: make(map[int64]domain.Subscriber)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return r, nil
	}

	var recs []jsonSubscriber
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, rec := range recs {
		r.subs[rec.ChatID] = domain.Subscriber{
			ChatID:     rec.ChatID,
			Enabled:    rec.Enabled,
			City:       rec.City,
			NotifyAt:   rec.NotifyAt,
			TZ:         rec.TZ,
			LastSentAt: rec.LastSentAt,
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
		}
	}
	return r, nil
}

// Close is a no-op; every write is already flushed.
func (r *JSONFileRepo) Close() error { return nil }

// UpsertSubscriber inserts or replaces a subscriber, keeping last_sent_at monotonic.
func (r *JSONFileRepo) UpsertSubscriber(_ context.Context, s *domain.Subscriber) error {
	if s == nil {
		return errors.New("nil subscriber")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := *s
	if prev, ok := r.subs[s.ChatID]; ok {
		rec.CreatedAt = prev.CreatedAt
		rec.LastSentAt = domain.LaterOf(prev.LastSentAt, s.LastSentAt)
	}
	stamp(&rec, time.Now())

	prev, existed := r.subs[s.ChatID]
	r.subs[s.ChatID] = rec
	if err := r.flushLocked(); err != nil {
		if existed {
			r.subs[s.ChatID] = prev
		} else {
			delete(r.subs, s.ChatID)
		}
		return err
	}
	s.CreatedAt, s.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

// Save records delivery state. An existing record only has last_sent_at
// advanced, so settings changed since s was read are kept.
func (r *JSONFileRepo) Save(ctx context.Context, s domain.Subscriber) error {
	r.mu.Lock()
	prev, ok := r.subs[s.ChatID]
	if !ok {
		r.mu.Unlock()
		return r.UpsertSubscriber(ctx, &s)
	}
	defer r.mu.Unlock()

	next := prev
	next.LastSentAt = domain.LaterOf(prev.LastSentAt, s.LastSentAt)
	next.UpdatedAt = time.Now().UTC()
	r.subs[s.ChatID] = next
	if err := r.flushLocked(); err != nil {
		r.subs[s.ChatID] = prev
		return err
	}
	return nil
}

// GetSubscriber returns a copy of the stored subscriber or ErrNotFound.
func (r *JSONFileRepo) GetSubscriber(_ context.Context, chatID int64) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// FetchAll returns every subscriber ordered by chat id.
func (r *JSONFileRepo) FetchAll(_ context.Context) ([]domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sortedLocked(), nil
}

// SetEnabled toggles the digest flag for a subscriber.
func (r *JSONFileRepo) SetEnabled(_ context.Context, chatID int64, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.subs[chatID]
	if !ok {
		return ErrNotFound
	}
	next := prev
	next.Enabled = enabled
	next.UpdatedAt = time.Now().UTC()
	r.subs[chatID] = next
	if err := r.flushLocked(); err != nil {
		r.subs[chatID] = prev
		return err
	}
	return nil
}

// ListChatIDs returns all known chat ids.
func (r *JSONFileRepo) ListChatIDs(_ context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.subs))
	for _, s := range r.sortedLocked() {
		ids = append(ids, s.ChatID)
	}
	return ids, nil
}

func (r *JSONFileRepo) sortedLocked() []domain.Subscriber {
	res := make([]domain.Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ChatID < res[j].ChatID })
	return res
}

// flushLocked writes the whole store atomically. Caller holds r.mu.
func (r *JSONFileRepo) flushLocked() error {
	subs := r.sortedLocked()
	recs := make([]jsonSubscriber, 0, len(subs))
	for _, s := range subs {
		recs = append(recs, jsonSubscriber{
			ChatID:     s.ChatID,
			Enabled:    s.Enabled,
			City:       s.City,
			NotifyAt:   s.NotifyAt,
			TZ:         s.TZ,
			LastSentAt: s.LastSentAt,
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
		})
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, r.path)
}
