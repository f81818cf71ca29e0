// Package bucket collapses arbitrary as-of dates onto a bounded set of
// canonical [start, end) intervals so that historical cache keys stay few.
//
// Bucketing only sizes the cache. A historical entry holds every record that
// may be relevant to any as-of date inside its interval; the bitemporal filter
// then decides what actually applies.
package bucket

import (
	"fmt"
	"strings"
	"time"
)

// Granularity selects the width of a bucket.
type Granularity int

const (
	// Month buckets are [first of month, first of next month).
	Month Granularity = iota
	// NoDates uses one wide interval anchored at process start:
	// [anchor - 24 months, anchor + 1 year + 1 day). As-of dates outside it
	// fall back to Year buckets, so a bucket always contains its as-of date.
	NoDates
	// Day buckets are single calendar days.
	Day
	// HalfMonth buckets split each month at the 16th.
	HalfMonth
	// Quarter buckets are calendar quarters.
	Quarter
	// Year buckets are calendar years.
	Year
)

var names = map[Granularity]string{
	NoDates:   "nodates",
	Day:       "day",
	HalfMonth: "halfmonth",
	Month:     "month",
	Quarter:   "quarter",
	Year:      "year",
}

func (g Granularity) String() string {
	if s, ok := names[g]; ok {
		return s
	}
	return fmt.Sprintf("Granularity(%d)", int(g))
}

// ParseGranularity parses a configuration value. The empty string means Month.
func ParseGranularity(s string) (Granularity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Month, nil
	}
	for g, name := range names {
		if name == s {
			return g, nil
		}
	}
	return Month, fmt.Errorf("bucket: unknown granularity %q", s)
}

// Bucketer maps as-of dates to bucket bounds. The zero value buckets by month
// in UTC.
type Bucketer struct {
	Granularity Granularity
	// Anchor is the reference date for NoDates; usually process start.
	Anchor time.Time
}

// New returns a Bucketer for g anchored at anchor.
func New(g Granularity, anchor time.Time) Bucketer {
	return Bucketer{Granularity: g, Anchor: anchor}
}

// Range returns the canonical [start, end) interval containing asOf.
// All bounds are UTC midnights so that equal buckets compare equal.
func (b Bucketer) Range(asOf time.Time) (start, end time.Time) {
	d := midnight(asOf)
	y, m, dd := d.Date()

	switch b.Granularity {
	case NoDates:
		a := midnight(b.Anchor)
		start, end = a.AddDate(0, -24, 0), a.AddDate(1, 0, 1)
		if !d.Before(start) && d.Before(end) {
			return start, end
		}
		return New(Year, b.Anchor).Range(asOf)
	case Day:
		return d, d.AddDate(0, 0, 1)
	case HalfMonth:
		first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		mid := time.Date(y, m, 16, 0, 0, 0, 0, time.UTC)
		if dd < 16 {
			return first, mid
		}
		return mid, first.AddDate(0, 1, 0)
	case Quarter:
		qm := time.Month((int(m)-1)/3*3 + 1)
		start = time.Date(y, qm, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0)
	case Year:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	default:
		start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}

// Key returns the historical cache key for base at asOf.
func Key[K comparable](b Bucketer, base K, asOf time.Time) HistoricalKey[K] {
	start, end := b.Range(asOf)
	return HistoricalKey[K]{Base: base, Start: start, End: end}
}

// HistoricalKey is a logical cache key extended with its bucket bounds.
type HistoricalKey[K comparable] struct {
	Base  K
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in [Start, End).
func (k HistoricalKey[K]) Contains(t time.Time) bool {
	return !t.Before(k.Start) && t.Before(k.End)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
