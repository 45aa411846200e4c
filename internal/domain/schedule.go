package domain

import (
	"errors"
	"fmt"
	"time"
)

// ConfigError reports a subscriber whose settings prevent evaluation.
// Such subscribers are skipped until the user fixes their input.
type ConfigError struct {
	ChatID int64
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("subscriber %d: %v", e.ChatID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrDisabled is returned for subscribers that have not opted in.
var ErrDisabled = errors.New("digest disabled")

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// sameDate reports whether a and b fall on the same calendar date in their locations.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// beforeDate reports whether a's calendar date is strictly before b's.
func beforeDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}

// IsDue reports whether a subscriber should receive the digest at nowUTC:
// the local notify time has been reached today and nothing was sent yet
// on the current local date. Missing a tick does not lose the day's digest.
//
// fallback is used when the subscriber's timezone cannot be resolved.
// A non-nil error is always a *ConfigError.
func IsDue(nowUTC time.Time, s Subscriber, fallback *time.Location) (bool, error) {
	if !s.Enabled {
		return false, &ConfigError{ChatID: s.ChatID, Err: ErrDisabled}
	}
	if s.City == "" {
		return false, &ConfigError{ChatID: s.ChatID, Err: ErrEmptyCity}
	}
	at, err := ParseTimeOfDay(s.NotifyAt)
	if err != nil {
		return false, &ConfigError{ChatID: s.ChatID, Err: err}
	}

	loc := ResolveLocation(s.TZ, fallback)
	nowLocal := nowUTC.In(loc)
	if nowLocal.Hour()*60+nowLocal.Minute() < at.Minutes() {
		return false, nil
	}
	if s.LastSentAt == nil {
		return true, nil
	}
	lastLocal := s.LastSentAt.In(loc)
	return beforeDate(lastLocal, nowLocal), nil
}

// NextDigestAt returns the next instant at or after nowUTC when the subscriber
// becomes due. It is informational (status screens) and ignores Enabled.
func NextDigestAt(nowUTC time.Time, s Subscriber, fallback *time.Location) (time.Time, error) {
	at, err := ParseTimeOfDay(s.NotifyAt)
	if err != nil {
		return time.Time{}, err
	}
	loc := ResolveLocation(s.TZ, fallback)
	nowLocal := nowUTC.In(loc)
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), at.Hour, at.Minute, 0, 0, loc)

	sentToday := s.LastSentAt != nil && sameDate(s.LastSentAt.In(loc), nowLocal)
	switch {
	case sentToday:
		return today.AddDate(0, 0, 1).UTC(), nil
	case !nowLocal.Before(today):
		// Already due; the next sweep delivers.
		return nowUTC.UTC(), nil
	}
	return today.UTC(), nil
}
