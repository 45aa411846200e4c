package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyTime   = errors.New("empty time")
	ErrInvalidTime = errors.New("invalid time of day")
	ErrEmptyCity   = errors.New("empty city")
	ErrInvalidTZ   = errors.New("invalid timezone")
)

// TimeOfDay is a wall-clock time without date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Minutes returns minutes since midnight (0..1439).
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return FormatMinutes(t.Minutes()) }

// ParseTimeOfDay parses "HH:MM" or "H:MM" (00:00..23:59).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, ErrEmptyTime
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 ||
		!isDigits(parts[0]) || !isDigits(parts[1]) {
		return TimeOfDay{}, fmt.Errorf("%w: %q, expected HH:MM", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: hour in %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: minute in %q", ErrInvalidTime, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// ValidateTZ checks that tz is a valid IANA location or a fixed UTC offset
// and returns its canonical form.
func ValidateTZ(tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTZ)
	}
	if secs, ok := parseOffset(tz); ok {
		return OffsetZoneName(secs), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "Local" {
		return "", fmt.Errorf("%w: %s", ErrInvalidTZ, tz)
	}
	return loc.String(), nil
}

// ResolveLocation maps a stored timezone to a usable location. It never fails:
// unknown or empty values resolve to fallback, or UTC when fallback is nil.
func ResolveLocation(tz string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return fallback
	}
	if secs, ok := parseOffset(tz); ok {
		return time.FixedZone(OffsetZoneName(secs), secs)
	}
	// "Local" would silently follow the host zone.
	if tz == "Local" {
		return fallback
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fallback
	}
	return loc
}

// OffsetZoneName formats seconds east of UTC as "+HH:MM".
func OffsetZoneName(secs int) string {
	sign := '+'
	if secs < 0 {
		sign = '-'
		secs = -secs
	}
	return fmt.Sprintf("%c%02d:%02d", sign, secs/3600, (secs%3600)/60)
}

// parseOffset accepts "+03:00", "-0530", "UTC+3", "GMT-02:30".
func parseOffset(s string) (int, bool) {
	upper := strings.ToUpper(s)
	for _, p := range []string{"UTC", "GMT"} {
		if strings.HasPrefix(upper, p) && len(upper) > len(p) {
			upper = upper[len(p):]
			break
		}
	}
	if len(upper) < 2 || (upper[0] != '+' && upper[0] != '-') {
		return 0, false
	}
	sign := 1
	if upper[0] == '-' {
		sign = -1
	}
	body := upper[1:]

	var hh, mm string
	switch {
	case strings.Contains(body, ":"):
		parts := strings.SplitN(body, ":", 2)
		hh, mm = parts[0], parts[1]
		if len(mm) != 2 {
			return 0, false
		}
	case len(body) == 4:
		hh, mm = body[:2], body[2:]
	default:
		hh, mm = body, "00"
	}
	if len(hh) == 0 || len(hh) > 2 || !isDigits(hh) || !isDigits(mm) {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return sign * (h*3600 + m*60), true
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	h := mins / 60
	m := mins % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// LocalizeTime formats t in the given timezone as "2006-01-02 15:04".
func LocalizeTime(t time.Time, tz string, fallback *time.Location) string {
	return t.In(ResolveLocation(tz, fallback)).Format("2006-01-02 15:04")
}

// isDigits reports whether s is non-empty and all ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
