// Package timewindow converts client-supplied time ranges into parameterized
// SQL predicates over UTC timestamps, plus grouping expressions that bucket
// by the client's local calendar date or hour.
package timewindow

import (
	"fmt"
	"time"
)

// Ledger timestamps are stored as naive UTC ISO-8601 strings so that range
// predicates and sqlite date functions both work lexicographically.
const (
	boundLayout = "2006-01-02T15:04:05"
	dateLayout  = "2006-01-02"
)

// Window is a time filter over ledger timestamps. Clause is either empty or
// a fragment of the form " AND timestamp >= ?..." meant to be appended to an
// existing WHERE condition, with Args supplying the placeholders.
type Window struct {
	Clause string
	Args   []any

	// offset is the client timezone offset in minutes from UTC, when local
	// bucketing applies.
	offset    *int
	useOffset bool
}

// now is swapped in tests.
var now = time.Now

// ConvertLocalDateToUTCRange maps a local calendar date plus a timezone
// offset (minutes from UTC, positive east) to the half-open UTC instant
// range covering that local day. The range is always exactly 24 hours and
// rolls over month, year, and leap-day boundaries via ordinary time
// arithmetic.
func ConvertLocalDateToUTCRange(date string, offsetMinutes int) (string, string, error) {
	localMidnight, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	start := localMidnight.Add(-time.Duration(offsetMinutes) * time.Minute)
	end := start.Add(24 * time.Hour)
	return start.Format(boundLayout), end.Format(boundLayout), nil
}

// Build constructs a Window from the query shortcuts the API accepts:
// hours (relative "last N hours"), a start/end date pair, or nothing. The
// offset, when present, shifts date bounds and enables local-time bucketing;
// the hours shortcut is purely relative and ignores it.
func Build(hours *int, startDate, endDate *string, offsetMinutes *int) (Window, error) {
	if hours != nil {
		since := now().UTC().Add(-time.Duration(*hours) * time.Hour)
		return Window{
			Clause: " AND timestamp >= ?",
			Args:   []any{since.Format(boundLayout)},
		}, nil
	}

	w := Window{offset: offsetMinutes, useOffset: offsetMinutes != nil}
	if startDate == nil && endDate == nil {
		return w, nil
	}

	if startDate != nil {
		start, err := lowerBound(*startDate, offsetMinutes)
		if err != nil {
			return Window{}, err
		}
		w.Clause += " AND timestamp >= ?"
		w.Args = append(w.Args, start)
	}
	if endDate != nil {
		end, err := upperBound(*endDate, offsetMinutes)
		if err != nil {
			return Window{}, err
		}
		w.Clause += " AND timestamp < ?"
		w.Args = append(w.Args, end)
	}
	return w, nil
}

// SingleDay builds the window covering exactly one local calendar day,
// used by the hourly rollup.
func SingleDay(date string, offsetMinutes *int) (Window, error) {
	off := 0
	if offsetMinutes != nil {
		off = *offsetMinutes
	}
	start, end, err := ConvertLocalDateToUTCRange(date, off)
	if err != nil {
		return Window{}, err
	}
	return Window{
		Clause:    " AND timestamp >= ? AND timestamp < ?",
		Args:      []any{start, end},
		offset:    offsetMinutes,
		useOffset: offsetMinutes != nil,
	}, nil
}

func lowerBound(date string, offsetMinutes *int) (string, error) {
	if offsetMinutes != nil {
		start, _, err := ConvertLocalDateToUTCRange(date, *offsetMinutes)
		return start, err
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	return date + "T00:00:00", nil
}

func upperBound(date string, offsetMinutes *int) (string, error) {
	if offsetMinutes != nil {
		_, end, err := ConvertLocalDateToUTCRange(date, *offsetMinutes)
		return end, err
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	return d.AddDate(0, 0, 1).Format(dateLayout) + "T00:00:00", nil
}

// modifier renders the sqlite datetime modifier for the window's offset,
// e.g. "+08:00" or "-05:30". Built from integer arithmetic only, so it is
// safe to splice into a grouping expression.
func modifier(offsetMinutes int) string {
	sign := "+"
	if offsetMinutes < 0 {
		sign = "-"
		offsetMinutes = -offsetMinutes
	}
	return fmt.Sprintf("%s%02d:%02d", sign, offsetMinutes/60, offsetMinutes%60)
}

// DateExpr returns the sqlite expression grouping rows by the client's local
// calendar date, or by UTC date when no offset was supplied.
func (w Window) DateExpr() string {
	if w.useOffset {
		return fmt.Sprintf("DATE(timestamp, '%s')", modifier(*w.offset))
	}
	return "DATE(timestamp)"
}

// HourExpr returns the sqlite expression grouping rows by local hour of day.
func (w Window) HourExpr() string {
	if w.useOffset {
		return fmt.Sprintf("CAST(strftime('%%H', timestamp, '%s') AS INTEGER)", modifier(*w.offset))
	}
	return "CAST(strftime('%H', timestamp) AS INTEGER)"
}
