package domain

import "time"

// Subscriber represents per-chat weather settings and daily digest state.
type Subscriber struct {
	ChatID     int64
	Enabled    bool       // daily digest opt-in
	City       string     // location to fetch weather for; empty disables the digest
	NotifyAt   string     // local time of day, "HH:MM"
	TZ         string     // IANA name or fixed offset, e.g. "+03:00"
	LastSentAt *time.Time // UTC, nullable
	CreatedAt  time.Time  // UTC
	UpdatedAt  time.Time  // UTC
}

// MarkSent records a successful delivery at t. LastSentAt never moves backwards.
func (s *Subscriber) MarkSent(t time.Time) {
	t = t.UTC()
	if s.LastSentAt != nil && !t.After(*s.LastSentAt) {
		return
	}
	s.LastSentAt = &t
}

// LaterOf returns the later of two nullable timestamps.
func LaterOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
