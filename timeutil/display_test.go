package timeutil

import (
	"testing"
	"time"
)

func TestFormatDisplay(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want string
	}{
		{
			name: "winter_est",
			in:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			want: "Dec 31, 2023 7:00 PM EST",
		},
		{
			name: "summer_edt",
			in:   time.Date(2024, 7, 4, 16, 30, 0, 0, time.UTC),
			want: "Jul 4, 2024 12:30 PM EDT",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatDisplay(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestUptime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want string
	}{
		{name: "zero", now: start, want: "0h 0m"},
		{name: "minutes", now: start.Add(42 * time.Minute), want: "0h 42m"},
		{name: "hours", now: start.Add(3*time.Hour + 7*time.Minute + 59*time.Second), want: "3h 7m"},
		{name: "clock_skew", now: start.Add(-time.Minute), want: "0h 0m"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Uptime(start, tc.now); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDiscordTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := DiscordTimestamp(ts, "f"); got != "<t:1704067200:f>" {
		t.Fatalf("unexpected tag %s", got)
	}
}

func TestParseRFC3339(t *testing.T) {
	got, err := ParseRFC3339("2024-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}

	if _, err := ParseRFC3339(""); err == nil {
		t.Fatal("expected error for empty value")
	}
	if _, err := ParseRFC3339("yesterday"); err == nil {
		t.Fatal("expected error for garbage value")
	}
}
