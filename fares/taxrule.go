package fares

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IvanBrykalov/farecache/accessor"
	"github.com/IvanBrykalov/farecache/backing"
	"github.com/IvanBrykalov/farecache/bucket"
	"github.com/IvanBrykalov/farecache/effectivity"
	"github.com/IvanBrykalov/farecache/keycodec"
	"github.com/IvanBrykalov/farecache/registry"
	"github.com/IvanBrykalov/farecache/session"
	"github.com/IvanBrykalov/farecache/warmload"
)

// TaxRuleKey identifies the tax rules of one nation and tax point.
type TaxRuleKey struct {
	Nation      string
	TaxPointTag string
}

// TaxRule is one version of a tax rule.
type TaxRule struct {
	Nation      string
	TaxPointTag string
	SeqNo       int
	TaxCode     string
	Amount      decimal.Decimal
	Currency    string

	Create, Eff, Disc, Expire time.Time
}

func (r TaxRule) CreateDate() time.Time { return r.Create }
func (r TaxRule) EffDate() time.Time    { return r.Eff }
func (r TaxRule) DiscDate() time.Time   { return r.Disc }
func (r TaxRule) ExpireDate() time.Time { return r.Expire }

// Key returns the cache key r is stored under.
func (r TaxRule) Key() TaxRuleKey { return TaxRuleKey{Nation: r.Nation, TaxPointTag: r.TaxPointTag} }

// TaxRuleCodec translates NATION/TAXPOINTTAG change notifications.
var TaxRuleCodec = keycodec.Fields[TaxRuleKey]{
	keycodec.String("NATION",
		func(k TaxRuleKey) string { return k.Nation },
		func(k *TaxRuleKey, v string) { k.Nation = v }),
	keycodec.String("TAXPOINTTAG",
		func(k TaxRuleKey) string { return k.TaxPointTag },
		func(k *TaxRuleKey, v string) { k.TaxPointTag = v }),
}

const (
	taxRuleColumns = `nation, tax_point_tag, seq_no, tax_code, amount, currency,
		create_date, eff_date, disc_date, expire_date`

	taxRuleByKey = `SELECT ` + taxRuleColumns + ` FROM tax_rule
		WHERE nation = ? AND tax_point_tag = ?
		ORDER BY seq_no, create_date`

	// Every version known before the bucket ends and not expired before
	// it starts.
	taxRuleByKeyHistorical = `SELECT ` + taxRuleColumns + ` FROM tax_rule
		WHERE nation = ? AND tax_point_tag = ?
		  AND create_date < ? AND (expire_date IS NULL OR expire_date >= ?)
		ORDER BY seq_no, create_date`

	taxRuleAll = `SELECT ` + taxRuleColumns + ` FROM tax_rule
		ORDER BY nation, tax_point_tag, seq_no, create_date`

	taxRuleAllHistorical = `SELECT ` + taxRuleColumns + ` FROM tax_rule
		WHERE create_date < ? AND (expire_date IS NULL OR expire_date >= ?)
		ORDER BY nation, tax_point_tag, seq_no, create_date`
)

// ScanTaxRule decodes one tax_rule row.
func ScanTaxRule(row backing.Row) (TaxRule, error) {
	var (
		r TaxRule
		d dates
	)
	dst := append([]any{&r.Nation, &r.TaxPointTag, &r.SeqNo, &r.TaxCode, &r.Amount, &r.Currency}, d.targets()...)
	if err := row.Scan(dst...); err != nil {
		return TaxRule{}, err
	}
	r.Create = d.create.Time
	r.Eff = d.eff.Time
	r.Disc = d.disc.Or(Infinity)
	r.Expire = d.expire.Or(Infinity)
	return r, nil
}

// TaxRules is the tax rule record type.
type TaxRules struct {
	accessor.Dual[TaxRuleKey, TaxRule]
	warm []warmload.Loader
}

// NewTaxRules builds the tax rule accessors over env.Source.
func NewTaxRules(env Env) *TaxRules {
	env = env.withDefaults()
	d := newDual(env, dualSpec[TaxRuleKey, TaxRule]{
		typ:   TypeTaxRule,
		codec: TaxRuleCodec,
		current: backing.KeyQuery[TaxRuleKey]{
			SQL:  taxRuleByKey,
			Args: func(k TaxRuleKey) []any { return []any{k.Nation, k.TaxPointTag} },
		},
		historical: backing.KeyQuery[bucket.HistoricalKey[TaxRuleKey]]{
			SQL: taxRuleByKeyHistorical,
			Args: func(hk bucket.HistoricalKey[TaxRuleKey]) []any {
				return []any{hk.Base.Nation, hk.Base.TaxPointTag, sqlDate(hk.End), sqlDate(hk.Start)}
			},
		},
		scan: ScanTaxRule,
	})

	t := &TaxRules{Dual: d}
	rt := env.Config.RecordType(TypeTaxRule)
	if rt.Warm {
		t.warm = []warmload.Loader{
			&warmload.Bulk[TaxRuleKey, TaxRule]{
				Type:   TypeTaxRule,
				Store:  d.Current.Store(),
				Source: env.Source,
				SQL:    taxRuleAll,
				Scan:   ScanTaxRule,
				KeyOf:  TaxRule.Key,
			},
			&warmload.HistoricalBulk[TaxRuleKey, TaxRule]{
				Type:     historicalName(TypeTaxRule),
				Enabled:  env.Config.Historical.Enabled,
				Store:    d.Historical.Store(),
				Bucketer: d.Historical.Bucketer(),
				At:       env.Anchor,
				Source:   env.Source,
				SQL:      taxRuleAllHistorical,
				Args:     func(start, end time.Time) []any { return []any{sqlDate(end), sqlDate(start)} },
				Scan:     ScanTaxRule,
				KeyOf:    TaxRule.Key,
			},
		}
	}
	return t
}

// Rules returns every tax rule version of nation/taxPointTag relevant to the
// transaction: all current versions, or those of the ticketing-date bucket.
func (t *TaxRules) Rules(ctx context.Context, h *session.Handle, nation, taxPointTag string) ([]TaxRule, error) {
	return t.Get(ctx, h, TaxRuleKey{Nation: nation, TaxPointTag: taxPointTag})
}

// Effective returns the rules of nation/taxPointTag in force on travel.
func (t *TaxRules) Effective(ctx context.Context, h *session.Handle, nation, taxPointTag string, travel time.Time) ([]TaxRule, error) {
	return t.GetEffective(ctx, h, TaxRuleKey{Nation: nation, TaxPointTag: taxPointTag}, travel)
}

// Applicable returns one rule per sequence number of nation/taxPointTag in
// force on travel: the latest correction the transaction may know about.
func (t *TaxRules) Applicable(ctx context.Context, h *session.Handle, nation, taxPointTag string, travel time.Time) ([]TaxRule, error) {
	all, err := t.Rules(ctx, h, nation, taxPointTag)
	if err != nil {
		return nil, err
	}
	keep := effectivity.Effective[TaxRule](travel, h.TicketDate())
	if h.IsHistorical() {
		keep = effectivity.EffectiveHistorical[TaxRule](travel, h.TicketDate())
	}
	return effectivity.WinnersBy(nil, all, func(r TaxRule) int { return r.SeqNo }, keep), nil
}

// WarmLoaders returns the startup loaders; empty unless warm is configured.
func (t *TaxRules) WarmLoaders() []warmload.Loader { return t.warm }

// Register adds the type to r.
func (t *TaxRules) Register(r *registry.Registry) error {
	return r.Register(registry.Type{
		Name:        TypeTaxRule,
		Invalidator: t.Dual,
		Warm:        t.warm,
		Stats:       dualStats(t.Dual),
	})
}

// InsertTaxRule writes r into the tax_rule table (fixtures, bench).
func InsertTaxRule(ctx context.Context, db Execer, r TaxRule) error {
	return db.Exec(ctx, `INSERT INTO tax_rule (`+taxRuleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Nation, r.TaxPointTag, r.SeqNo, r.TaxCode, r.Amount.String(), r.Currency,
		sqlDate(r.Create), sqlDate(r.Eff), nullDate(r.Disc), nullDate(r.Expire))
}
