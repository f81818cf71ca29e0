package fares

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IvanBrykalov/farecache/accessor"
	"github.com/IvanBrykalov/farecache/cache"
	"github.com/IvanBrykalov/farecache/config"
	"github.com/IvanBrykalov/farecache/keycodec"
	"github.com/IvanBrykalov/farecache/registry"
	"github.com/IvanBrykalov/farecache/session"
	"github.com/IvanBrykalov/farecache/warmload"
)

// ErrUnknownCurrency is returned when no currency version applies.
var ErrUnknownCurrency = errors.New("fares: unknown currency")

// Currency is one version of a currency definition.
type Currency struct {
	Code  string
	NoDec int32
	// RoundingUnit overrides NoDec when set (e.g. 0.05).
	RoundingUnit decimal.Decimal

	Create, Eff, Disc, Expire time.Time
}

func (c Currency) CreateDate() time.Time { return c.Create }
func (c Currency) EffDate() time.Time    { return c.Eff }
func (c Currency) DiscDate() time.Time   { return c.Disc }
func (c Currency) ExpireDate() time.Time { return c.Expire }

// Round rounds amount to the currency's unit, half away from zero.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	if c.RoundingUnit.IsPositive() {
		return amount.Div(c.RoundingUnit).Round(0).Mul(c.RoundingUnit)
	}
	return amount.Round(c.NoDec)
}

var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

func builtin(code string, noDec int32, unit string) Currency {
	return Currency{
		Code:         code,
		NoDec:        noDec,
		RoundingUnit: decimal.RequireFromString(unit),
		Create:       epoch,
		Eff:          epoch,
		Disc:         Infinity,
		Expire:       Infinity,
	}
}

// DefaultCurrencies is the built-in currency table.
var DefaultCurrencies = []Currency{
	builtin("USD", 2, "0.01"),
	builtin("EUR", 2, "0.01"),
	builtin("GBP", 2, "0.01"),
	builtin("CHF", 2, "0.05"),
	builtin("JPY", 0, "1"),
	builtin("KWD", 3, "0.001"),
}

// CurrencyCodec translates CURRENCYCODE change notifications.
var CurrencyCodec = keycodec.StringKey("CURRENCYCODE")

// Currencies is the currency record type. Its data needs no backing store:
// it is seeded from a table at startup and misses are answered from the
// same table.
type Currencies struct {
	*accessor.Current[string, Currency]
	warm warmload.Loader
}

// NewCurrencies builds the currency accessor over table (DefaultCurrencies
// when nil).
func NewCurrencies(env Env, table []Currency) *Currencies {
	env = env.withDefaults()
	if table == nil {
		table = DefaultCurrencies
	}
	byCode := make(map[string][]Currency, len(table))
	for _, c := range table {
		byCode[c.Code] = append(byCode[c.Code], c)
	}

	rt := env.Config.RecordType(TypeCurrency)
	opt := config.StoreOptions[string, Currency](TypeCurrency, rt, env.Logger)
	opt.Loader = func(_ context.Context, code string) ([]Currency, error) {
		return byCode[code], nil
	}
	opt.Metrics = env.Metrics.Store(TypeCurrency)
	opt.Clock = env.Clock
	store := cache.New(opt)

	return &Currencies{
		Current: accessor.NewCurrent(accessor.Config[string, Currency]{
			Name:     TypeCurrency,
			Store:    store,
			Codec:    CurrencyCodec,
			SkipCopy: rt.SkipCopy,
			Metrics:  env.Metrics.Accessor(TypeCurrency),
			Logger:   env.Logger,
		}),
		warm: &warmload.Static[string, Currency]{
			Type:  TypeCurrency,
			Store: store,
			Build: func(context.Context) (map[string][]Currency, error) { return byCode, nil },
		},
	}
}

// Lookup returns the currency version in force on the ticketing date.
func (c *Currencies) Lookup(ctx context.Context, h *session.Handle, code string) (Currency, error) {
	d := h.TicketDate()
	cur, ok, err := c.GetWinner(ctx, h.Ledger(), code, d, d)
	if err != nil {
		return Currency{}, err
	}
	if !ok {
		return Currency{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return cur, nil
}

// Round rounds amount in currency code.
func (c *Currencies) Round(ctx context.Context, h *session.Handle, code string, amount decimal.Decimal) (decimal.Decimal, error) {
	cur, err := c.Lookup(ctx, h, code)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return cur.Round(amount), nil
}

// WarmLoaders returns the static seed loader.
func (c *Currencies) WarmLoaders() []warmload.Loader { return []warmload.Loader{c.warm} }

// Register adds the type to r.
func (c *Currencies) Register(r *registry.Registry) error {
	return r.Register(registry.Type{
		Name:        TypeCurrency,
		Invalidator: c.Current,
		Warm:        c.WarmLoaders(),
		Stats:       c.Store().Stats,
	})
}
