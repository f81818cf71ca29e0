// Package effectivity decides whether a bitemporal record applies to a query.
//
// Every cached record carries two time axes. The business axis is the
// effective window [EffDate, DiscDate]; the knowledge axis is CreateDate (the
// moment this version was recorded). ExpireDate is a hard cutoff on the
// knowledge axis: once passed, the record is never returned again.
//
// Current queries ask "what applies on date D, as known today". Historical
// queries ask "what did we know on ticketing date T about travel date D".
// Both come in an "all effective" flavour and a "single winner" flavour that
// keeps only the latest CreateDate among the matches.
//
// Predicates never fail: a record that fails every test is simply excluded.
package effectivity

import "time"

// Versioned is the date contract every cached record type satisfies.
type Versioned interface {
	CreateDate() time.Time
	EffDate() time.Time
	DiscDate() time.Time
	ExpireDate() time.Time
}

// Predicate reports whether a record passes a filter.
type Predicate[R Versioned] func(R) bool

// within reports lo <= t <= hi.
func within(t, lo, hi time.Time) bool {
	return !t.Before(lo) && !t.After(hi)
}

// IsEffective reports EffDate <= date <= DiscDate and today <= ExpireDate.
func IsEffective(r Versioned, date, today time.Time) bool {
	return within(date, r.EffDate(), r.DiscDate()) && !today.After(r.ExpireDate())
}

// IsEffectiveHistorical reports EffDate <= travel <= DiscDate and
// CreateDate <= ticket <= ExpireDate.
func IsEffectiveHistorical(r Versioned, travel, ticket time.Time) bool {
	return within(travel, r.EffDate(), r.DiscDate()) && within(ticket, r.CreateDate(), r.ExpireDate())
}

// Effective builds the effective-current predicate.
func Effective[R Versioned](date, today time.Time) Predicate[R] {
	return func(r R) bool { return IsEffective(r, date, today) }
}

// EffectiveHistorical builds the effective-historical predicate.
func EffectiveHistorical[R Versioned](travel, ticket time.Time) Predicate[R] {
	return func(r R) bool { return IsEffectiveHistorical(r, travel, ticket) }
}

// NotEffective is the negation of Effective; it drives RemoveMatching.
func NotEffective[R Versioned](date, today time.Time) Predicate[R] {
	return func(r R) bool { return !IsEffective(r, date, today) }
}

// NotEffectiveHistorical is the negation of EffectiveHistorical.
func NotEffectiveHistorical[R Versioned](travel, ticket time.Time) Predicate[R] {
	return func(r R) bool { return !IsEffectiveHistorical(r, travel, ticket) }
}

// Not negates p.
func (p Predicate[R]) Not() Predicate[R] {
	return func(r R) bool { return !p(r) }
}

// All reports whether every record passes p.
func All[R Versioned](records []R, p Predicate[R]) bool {
	for _, r := range records {
		if !p(r) {
			return false
		}
	}
	return true
}
