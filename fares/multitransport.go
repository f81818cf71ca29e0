package fares

import (
	"context"
	"time"

	"github.com/IvanBrykalov/farecache/accessor"
	"github.com/IvanBrykalov/farecache/backing"
	"github.com/IvanBrykalov/farecache/bucket"
	"github.com/IvanBrykalov/farecache/cache"
	"github.com/IvanBrykalov/farecache/hotpath"
	"github.com/IvanBrykalov/farecache/keycodec"
	"github.com/IvanBrykalov/farecache/ledger"
	"github.com/IvanBrykalov/farecache/registry"
	"github.com/IvanBrykalov/farecache/session"
	"github.com/IvanBrykalov/farecache/warmload"
)

// Travel types a multi-transport mapping may be restricted to. TravelAny on
// a record applies to every travel type; on a query it accepts every record.
const (
	TravelAny           = ""
	TravelDomestic      = "D"
	TravelInternational = "I"
)

// MultiTransport maps a location (airport, rail station) to the city it is
// priced as, optionally only for one carrier or travel type.
type MultiTransport struct {
	Loc        string
	City       string
	Carrier    string
	TravelType string

	Create, Eff, Disc, Expire time.Time
}

func (m MultiTransport) CreateDate() time.Time { return m.Create }
func (m MultiTransport) EffDate() time.Time    { return m.Eff }
func (m MultiTransport) DiscDate() time.Time   { return m.Disc }
func (m MultiTransport) ExpireDate() time.Time { return m.Expire }

// MultiTransportCodec translates LOC change notifications.
var MultiTransportCodec = keycodec.StringKey("LOC")

const (
	multiTransportColumns = `loc, city, carrier, travel_type, create_date, eff_date, disc_date, expire_date`

	multiTransportByLoc = `SELECT ` + multiTransportColumns + ` FROM multi_transport
		WHERE loc = ? ORDER BY create_date`

	multiTransportByLocHistorical = `SELECT ` + multiTransportColumns + ` FROM multi_transport
		WHERE loc = ? AND create_date < ? AND (expire_date IS NULL OR expire_date >= ?)
		ORDER BY create_date`

	multiTransportAll = `SELECT ` + multiTransportColumns + ` FROM multi_transport
		ORDER BY loc, create_date`
)

// ScanMultiTransport decodes one multi_transport row.
func ScanMultiTransport(row backing.Row) (MultiTransport, error) {
	var (
		m MultiTransport
		d dates
	)
	dst := append([]any{&m.Loc, &m.City, &m.Carrier, &m.TravelType}, d.targets()...)
	if err := row.Scan(dst...); err != nil {
		return MultiTransport{}, err
	}
	m.Create = d.create.Time
	m.Eff = d.eff.Time
	m.Disc = d.disc.Or(Infinity)
	m.Expire = d.expire.Or(Infinity)
	return m, nil
}

// MultiTransports is the multi-transport record type. City code lookups
// without a carrier override on current data go through a lock-free
// micro cache first.
type MultiTransports struct {
	accessor.Dual[string, MultiTransport]
	hot   *hotpath.Cache
	clock cache.Clock
	warm  []warmload.Loader
}

// NewMultiTransports builds the multi-transport accessors over env.Source.
func NewMultiTransports(env Env) *MultiTransports {
	env = env.withDefaults()
	d := newDual(env, dualSpec[string, MultiTransport]{
		typ:   TypeMultiTransport,
		codec: MultiTransportCodec,
		current: backing.KeyQuery[string]{
			SQL:  multiTransportByLoc,
			Args: func(loc string) []any { return []any{loc} },
		},
		historical: backing.KeyQuery[bucket.HistoricalKey[string]]{
			SQL: multiTransportByLocHistorical,
			Args: func(hk bucket.HistoricalKey[string]) []any {
				return []any{hk.Base, sqlDate(hk.End), sqlDate(hk.Start)}
			},
		},
		scan: ScanMultiTransport,
	})

	m := &MultiTransports{
		Dual:  d,
		hot:   hotpath.New(env.Metrics.HotPath(TypeMultiTransport)),
		clock: env.Clock,
	}
	// Listeners run after the store has dropped the key, so no lookup can
	// republish the dropped data under the new generation. The micro cache
	// only holds current data.
	d.Current.OnInvalidate(m.hot.Reset)
	if env.Config.RecordType(TypeMultiTransport).Warm {
		m.warm = []warmload.Loader{&warmload.Bulk[string, MultiTransport]{
			Type:   TypeMultiTransport,
			Store:  d.Current.Store(),
			Source: env.Source,
			SQL:    multiTransportAll,
			Scan:   ScanMultiTransport,
			KeyOf:  func(r MultiTransport) string { return r.Loc },
		}}
	}
	return m
}

// HotPath exposes the micro cache (stats, tests).
func (m *MultiTransports) HotPath() *hotpath.Cache { return m.hot }

type cityQuery struct {
	loc, carrier, travelType string
	date                     int64
	ticket                   int64
	historical               bool
}

// City returns the city loc is priced as for carrier and travelType on date.
// A carrier-specific mapping beats a generic one, and a travel-type
// specific one beats TravelAny; among equals the latest version wins. A
// location without a mapping is its own city. Answers are memoized for the
// lifetime of the transaction.
func (m *MultiTransports) City(ctx context.Context, h *session.Handle, loc, carrier, travelType string, date time.Time) (string, error) {
	q := cityQuery{
		loc:        loc,
		carrier:    carrier,
		travelType: travelType,
		date:       date.UnixNano(),
		ticket:     h.TicketDate().UnixNano(),
		historical: h.IsHistorical(),
	}
	return ledger.Memoize(h.Ledger(), TypeMultiTransport+".city", q, func() (string, error) {
		records, err := m.GetEffective(ctx, h, loc, date)
		if err != nil {
			return "", err
		}
		return pickCity(loc, records, carrier, travelType), nil
	})
}

// CityCode returns the city of loc with no carrier override as of now.
// On current data the micro cache answers repeated lookups without touching
// the store.
func (m *MultiTransports) CityCode(ctx context.Context, h *session.Handle, loc string) (string, error) {
	now := cache.Now(m.clock)
	if h.IsHistorical() {
		return m.City(ctx, h, loc, "", TravelAny, now)
	}

	code, state, gen := m.hot.Lookup(loc)
	switch state {
	case hotpath.Hit:
		return code.String(), nil
	case hotpath.Uncacheable, hotpath.NotIndexable:
		return m.City(ctx, h, loc, "", TravelAny, now)
	}

	records, err := m.Current.Get(ctx, h.Ledger(), loc)
	if err != nil {
		return "", err
	}
	city, stable := stableCity(loc, records, now)
	answer, ok := hotpath.ParseCode(city)
	if !stable || !ok {
		m.hot.MarkUncacheable(loc, gen)
		return m.City(ctx, h, loc, "", TravelAny, now)
	}
	m.hot.Publish(loc, gen, answer)
	return city, nil
}

// stableCity reports the generic mapping of loc and whether it can be
// cached independently of dates: every generic mapping names the same city
// whatever the travel type, was created and took effect strictly before
// now, and never ends.
func stableCity(loc string, records []MultiTransport, now time.Time) (string, bool) {
	city := ""
	for _, r := range records {
		if r.Carrier != "" {
			continue
		}
		if !r.Create.Before(now) || !r.Eff.Before(now) {
			return "", false
		}
		if r.Disc.Before(Infinity) || r.Expire.Before(Infinity) {
			return "", false
		}
		if city != "" && city != r.City {
			return "", false
		}
		city = r.City
	}
	if city == "" {
		return loc, true
	}
	return city, true
}

func pickCity(loc string, records []MultiTransport, carrier, travelType string) string {
	best, bestScore := -1, 0
	for i, r := range records {
		score := 0
		switch r.Carrier {
		case carrier:
			score += 4
		case "":
			score += 2
		default:
			continue
		}
		switch {
		case travelType == TravelAny || r.TravelType == travelType:
			score++
		case r.TravelType != TravelAny:
			continue
		}
		if score > bestScore || (score == bestScore && r.Create.After(records[best].Create)) {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return loc
	}
	return records[best].City
}

// WarmLoaders returns the startup loaders; empty unless warm is configured.
func (m *MultiTransports) WarmLoaders() []warmload.Loader { return m.warm }

// Register adds the type to r.
func (m *MultiTransports) Register(r *registry.Registry) error {
	return r.Register(registry.Type{
		Name:        TypeMultiTransport,
		Invalidator: m.Dual,
		Warm:        m.warm,
		Stats:       dualStats(m.Dual),
	})
}

// InsertMultiTransport writes r into the multi_transport table.
func InsertMultiTransport(ctx context.Context, db Execer, r MultiTransport) error {
	return db.Exec(ctx, `INSERT INTO multi_transport (`+multiTransportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Loc, r.City, r.Carrier, r.TravelType,
		sqlDate(r.Create), sqlDate(r.Eff), nullDate(r.Disc), nullDate(r.Expire))
}
