package domain

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	ok := map[string]string{
		"08:00":   "08:00",
		"8:05":    "08:05",
		" 23:59 ": "23:59",
		"00:00":   "00:00",
	}
	for in, want := range ok {
		got, err := ParseTimeOfDay(in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("%q: want %s, got %s", in, want, got)
		}
	}

	for _, in := range []string{"", "24:00", "12:60", "12", "12:5", "ab:cd", "1:2:3", "123:00", "+8:00", "-0:05", "08:+5", " 8: 05"} {
		if _, err := ParseTimeOfDay(in); err == nil {
			t.Fatalf("%q: want error", in)
		}
	}
}

func TestValidateTZ(t *testing.T) {
	cases := map[string]string{
		"Europe/Kyiv": "Europe/Kyiv",
		"UTC":         "UTC",
		"+03:00":      "+03:00",
		"UTC+3":       "+03:00",
		"gmt-0530":    "-05:30",
		"+3:30":       "+03:30",
	}
	for in, want := range cases {
		got, err := ValidateTZ(in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: want %s, got %s", in, want, got)
		}
	}
	for _, in := range []string{"", "Not/AZone", "+25:00", "+03:5", "+03:", "+:30", "UTC+", "+3:+0", "+123", "+03:005"} {
		if _, err := ValidateTZ(in); err == nil {
			t.Fatalf("%q: want error", in)
		}
	}
}

func TestResolveLocation_Fallback(t *testing.T) {
	if got := ResolveLocation("Not/AZone", nil); got != time.UTC {
		t.Fatalf("want UTC, got %v", got)
	}
	if got := ResolveLocation("", nil); got != time.UTC {
		t.Fatalf("want UTC for empty, got %v", got)
	}
	if got := ResolveLocation("Local", nil); got != time.UTC {
		t.Fatalf("want UTC for Local, got %v", got)
	}

	fb := time.FixedZone("fb", 3600)
	if got := ResolveLocation("bogus", fb); got != fb {
		t.Fatalf("want fallback zone, got %v", got)
	}

	loc := ResolveLocation("-02:30", nil)
	_, off := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	if off != -(2*3600 + 30*60) {
		t.Fatalf("want -9000s offset, got %d", off)
	}
}

func TestOffsetZoneName(t *testing.T) {
	if got := OffsetZoneName(10800); got != "+03:00" {
		t.Fatalf("want +03:00, got %s", got)
	}
	if got := OffsetZoneName(-16200); got != "-04:30" {
		t.Fatalf("want -04:30, got %s", got)
	}
	if got := OffsetZoneName(0); got != "+00:00" {
		t.Fatalf("want +00:00, got %s", got)
	}
}

func TestLocalizeTime(t *testing.T) {
	at := time.Date(2025, time.March, 10, 6, 5, 0, 0, time.UTC)

	if got := LocalizeTime(at, "Europe/Kyiv", nil); got != "2025-03-10 08:05" {
		t.Fatalf("Kyiv: got %q", got)
	}
	if got := LocalizeTime(at, "+05:30", nil); got != "2025-03-10 11:35" {
		t.Fatalf("offset: got %q", got)
	}
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	if got := LocalizeTime(at, "", tokyo); got != "2025-03-10 15:05" {
		t.Fatalf("fallback: got %q", got)
	}
}
