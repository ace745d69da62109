package timewindow

import (
	"testing"
	"time"
)

func TestConvertLocalDateToUTCRange(t *testing.T) {
	cases := []struct {
		date      string
		offset    int
		wantStart string
		wantEnd   string
	}{
		// PST (UTC-8): local midnight is 08:00 UTC.
		{"2025-10-06", -480, "2025-10-06T08:00:00", "2025-10-07T08:00:00"},
		// UTC: identity.
		{"2025-10-06", 0, "2025-10-06T00:00:00", "2025-10-07T00:00:00"},
		// JST (UTC+9): local midnight is 15:00 UTC the previous day.
		{"2025-10-06", 540, "2025-10-05T15:00:00", "2025-10-06T15:00:00"},
		// Half-hour offset (IST, UTC+5:30).
		{"2025-10-06", 330, "2025-10-05T18:30:00", "2025-10-06T18:30:00"},
		// Year boundary.
		{"2026-01-01", 540, "2025-12-31T15:00:00", "2026-01-01T15:00:00"},
		{"2025-12-31", -480, "2025-12-31T08:00:00", "2026-01-01T08:00:00"},
		// Leap day.
		{"2024-02-29", 0, "2024-02-29T00:00:00", "2024-03-01T00:00:00"},
		{"2024-03-01", 540, "2024-02-29T15:00:00", "2024-03-01T15:00:00"},
	}
	for _, tc := range cases {
		start, end, err := ConvertLocalDateToUTCRange(tc.date, tc.offset)
		if err != nil {
			t.Fatalf("convert(%s, %d): %v", tc.date, tc.offset, err)
		}
		if start != tc.wantStart || end != tc.wantEnd {
			t.Errorf("convert(%s, %d) = (%s, %s), want (%s, %s)",
				tc.date, tc.offset, start, end, tc.wantStart, tc.wantEnd)
		}
	}
}

func TestConvertLocalDateToUTCRange_AlwaysSpans24Hours(t *testing.T) {
	for _, offset := range []int{-720, -480, -90, 0, 330, 540, 840} {
		start, end, err := ConvertLocalDateToUTCRange("2025-03-15", offset)
		if err != nil {
			t.Fatal(err)
		}
		st, _ := time.Parse("2006-01-02T15:04:05", start)
		et, _ := time.Parse("2006-01-02T15:04:05", end)
		if et.Sub(st) != 24*time.Hour {
			t.Errorf("offset %d: span %v, want 24h", offset, et.Sub(st))
		}
	}
}

func TestConvertLocalDateToUTCRange_InvalidDate(t *testing.T) {
	if _, _, err := ConvertLocalDateToUTCRange("not-a-date", 0); err == nil {
		t.Fatal("expected error for invalid date")
	}
}

func TestBuild_HoursShortcut(t *testing.T) {
	defer func(orig func() time.Time) { now = orig }(now)
	now = func() time.Time {
		return time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC)
	}

	hours := 24
	offset := -480
	w, err := Build(&hours, nil, nil, &offset)
	if err != nil {
		t.Fatal(err)
	}
	if w.Clause != " AND timestamp >= ?" {
		t.Fatalf("clause = %q", w.Clause)
	}
	if w.Args[0] != "2025-10-05T12:00:00" {
		t.Fatalf("arg = %v", w.Args[0])
	}
	// Relative windows ignore the offset and bucket by UTC.
	if w.DateExpr() != "DATE(timestamp)" {
		t.Fatalf("hours shortcut must not use local bucketing, got %q", w.DateExpr())
	}
}

func TestBuild_DateRangeWithOffset(t *testing.T) {
	start, end, offset := "2025-10-01", "2025-10-06", -480
	w, err := Build(nil, &start, &end, &offset)
	if err != nil {
		t.Fatal(err)
	}
	if w.Clause != " AND timestamp >= ? AND timestamp < ?" {
		t.Fatalf("clause = %q", w.Clause)
	}
	if w.Args[0] != "2025-10-01T08:00:00" || w.Args[1] != "2025-10-07T08:00:00" {
		t.Fatalf("args = %v", w.Args)
	}
	if w.DateExpr() != "DATE(timestamp, '-08:00')" {
		t.Fatalf("date expr = %q", w.DateExpr())
	}
	if w.HourExpr() != "CAST(strftime('%H', timestamp, '-08:00') AS INTEGER)" {
		t.Fatalf("hour expr = %q", w.HourExpr())
	}
}

func TestBuild_DateRangeWithoutOffset(t *testing.T) {
	start, end := "2025-10-01", "2025-10-06"
	w, err := Build(nil, &start, &end, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.Args[0] != "2025-10-01T00:00:00" || w.Args[1] != "2025-10-07T00:00:00" {
		t.Fatalf("args = %v", w.Args)
	}
	if w.DateExpr() != "DATE(timestamp)" {
		t.Fatalf("date expr = %q", w.DateExpr())
	}
}

func TestBuild_Empty(t *testing.T) {
	w, err := Build(nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.Clause != "" || len(w.Args) != 0 {
		t.Fatalf("expected empty window, got %q %v", w.Clause, w.Args)
	}
}

func TestSingleDay(t *testing.T) {
	offset := 540
	w, err := SingleDay("2025-10-06", &offset)
	if err != nil {
		t.Fatal(err)
	}
	if w.Args[0] != "2025-10-05T15:00:00" || w.Args[1] != "2025-10-06T15:00:00" {
		t.Fatalf("args = %v", w.Args)
	}
	if w.HourExpr() != "CAST(strftime('%H', timestamp, '+09:00') AS INTEGER)" {
		t.Fatalf("hour expr = %q", w.HourExpr())
	}
}

func TestModifierHalfHour(t *testing.T) {
	if got := modifier(330); got != "+05:30" {
		t.Fatalf("modifier(330) = %q", got)
	}
	if got := modifier(-570); got != "-09:30" {
		t.Fatalf("modifier(-570) = %q", got)
	}
}
