package utils

import (
	"testing"
	"time"
)

func TestParseFcTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-08-30T10:15:00Z", time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC), true},
		{"2026-08-30 10:15:00", time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC), true},
		{"2026-08-30", time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), true},
		{"  2026-08-30  ", time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), true},
		{"30/08/2026", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, c := range cases {
		got, ok := ParseFcTime(c.in)
		if ok != c.ok {
			t.Errorf("ParseFcTime(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && !got.Equal(c.want) {
			t.Errorf("ParseFcTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIsActiveStatus(t *testing.T) {
	for _, s := range []string{"ACTIVE", "active", "Activo", "A", " a "} {
		if !IsActiveStatus(s) {
			t.Errorf("expected %q to read as active", s)
		}
	}
	for _, s := range []string{"INACTIVE", "I", "", "disabled"} {
		if IsActiveStatus(s) {
			t.Errorf("expected %q to read as inactive", s)
		}
	}
}

func TestDecimalFromStringFallsBackToZero(t *testing.T) {
	if got := DecimalFromString("12.5"); got.String() != "12.5" {
		t.Fatalf("expected 12.5, got %s", got)
	}
	if got := DecimalFromString("not a number"); !got.IsZero() {
		t.Fatalf("expected zero for garbage input, got %s", got)
	}
	if got := DecimalFromString(""); !got.IsZero() {
		t.Fatalf("expected zero for empty input, got %s", got)
	}
}

func TestFcDayAndMonthFormats(t *testing.T) {
	d := time.Date(2026, 8, 5, 14, 0, 0, 0, time.UTC)
	if got := FormatFcDay(d); got != "20260805" {
		t.Fatalf("expected 20260805, got %s", got)
	}
	if got := FormatFcMonthYear(d); got != "08-2026" {
		t.Fatalf("expected 08-2026, got %s", got)
	}
}
