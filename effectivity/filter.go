package effectivity

import "time"

// RemoveMatching appends to dst every record of src for which remove is false
// and returns the extended slice. src is never modified, so it is safe to call
// on a published cache entry; dst is typically an owned, pooled buffer.
func RemoveMatching[R Versioned](dst, src []R, remove Predicate[R]) []R {
	for _, r := range src {
		if !remove(r) {
			dst = append(dst, r)
		}
	}
	return dst
}

// Winner returns the record with the latest CreateDate among those passing
// keep. Ties keep the earlier record in load order.
func Winner[R Versioned](records []R, keep Predicate[R]) (R, bool) {
	var (
		best  R
		found bool
	)
	for _, r := range records {
		if !keep(r) {
			continue
		}
		if !found || r.CreateDate().After(best.CreateDate()) {
			best, found = r, true
		}
	}
	return best, found
}

// CurrentWinner is the current-winner predicate shape: effective-current plus
// latest CreateDate among the matches.
func CurrentWinner[R Versioned](records []R, date, today time.Time) (R, bool) {
	return Winner(records, Effective[R](date, today))
}

// HistoricalWinner is effective-historical plus the latest CreateDate.
func HistoricalWinner[R Versioned](records []R, travel, ticket time.Time) (R, bool) {
	return Winner(records, EffectiveHistorical[R](travel, ticket))
}

// WinnersBy keeps one winner per logical identity. Records sharing an
// identity are successive corrections of the same fact; the latest CreateDate
// among those passing keep wins. Output order follows the first appearance of
// each identity in records.
func WinnersBy[R Versioned, I comparable](dst, records []R, identity func(R) I, keep Predicate[R]) []R {
	pos := make(map[I]int)
	for _, r := range records {
		if !keep(r) {
			continue
		}
		id := identity(r)
		if i, ok := pos[id]; ok {
			if r.CreateDate().After(dst[i].CreateDate()) {
				dst[i] = r
			}
			continue
		}
		pos[id] = len(dst)
		dst = append(dst, r)
	}
	return dst
}
