package effectivity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/farecache/effectivity"
)

type rec struct {
	id                        string
	create, eff, disc, expire time.Time
}

func (r rec) CreateDate() time.Time { return r.create }
func (r rec) EffDate() time.Time    { return r.eff }
func (r rec) DiscDate() time.Time   { return r.disc }
func (r rec) ExpireDate() time.Time { return r.expire }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestIsEffective_Table(t *testing.T) {
	t.Parallel()

	r := rec{create: day("2019-12-01"), eff: day("2020-01-01"), disc: day("2020-12-31"), expire: day("2021-01-31")}

	tests := []struct {
		name  string
		date  time.Time
		today time.Time
		want  bool
	}{
		{"inside window", day("2020-06-01"), day("2020-06-01"), true},
		{"after expire", day("2021-06-01"), day("2021-06-01"), false},
		{"on eff date", day("2020-01-01"), day("2020-01-01"), true},
		{"on disc date", day("2020-12-31"), day("2020-12-31"), true},
		{"before eff", day("2019-12-31"), day("2019-12-31"), false},
		{"window ok but expired today", day("2020-06-01"), day("2021-02-01"), false},
		{"after disc, not expired", day("2021-01-15"), day("2021-01-15"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, effectivity.IsEffective(r, tt.date, tt.today))
			assert.Equal(t, !tt.want, effectivity.NotEffective[rec](tt.date, tt.today)(r))
		})
	}
}

func TestIsEffectiveHistorical(t *testing.T) {
	t.Parallel()

	r := rec{create: day("2020-03-01"), eff: day("2020-01-01"), disc: day("2020-12-31"), expire: day("2020-09-30")}

	assert.True(t, effectivity.IsEffectiveHistorical(r, day("2020-06-01"), day("2020-04-01")))
	// Not yet known on the ticketing date.
	assert.False(t, effectivity.IsEffectiveHistorical(r, day("2020-06-01"), day("2020-02-01")))
	// Known, but expired by the ticketing date.
	assert.False(t, effectivity.IsEffectiveHistorical(r, day("2020-06-01"), day("2020-10-01")))
	// Travel outside the effective window.
	assert.False(t, effectivity.IsEffectiveHistorical(r, day("2021-02-01"), day("2020-04-01")))
}

func TestCurrentWinner_LatestCreateDate(t *testing.T) {
	t.Parallel()

	older := rec{id: "v1", create: day("2020-01-01"), eff: day("2020-01-01"), disc: day("2020-12-31"), expire: day("2099-01-01")}
	newer := rec{id: "v2", create: day("2020-06-01"), eff: day("2020-01-01"), disc: day("2020-12-31"), expire: day("2099-01-01")}

	for _, records := range [][]rec{{older, newer}, {newer, older}} {
		w, ok := effectivity.CurrentWinner(records, day("2020-07-01"), day("2020-07-01"))
		require.True(t, ok)
		assert.Equal(t, "v2", w.id)
	}

	_, ok := effectivity.CurrentWinner([]rec{older}, day("2021-07-01"), day("2021-07-01"))
	assert.False(t, ok, "no record covers the date")
}

func TestWinner_TieKeepsLoadOrder(t *testing.T) {
	t.Parallel()

	a := rec{id: "a", create: day("2020-01-01"), eff: day("2020-01-01"), disc: day("2020-12-31"), expire: day("2099-01-01")}
	b := a
	b.id = "b"

	w, ok := effectivity.CurrentWinner([]rec{a, b}, day("2020-02-01"), day("2020-02-01"))
	require.True(t, ok)
	assert.Equal(t, "a", w.id)
}

func TestHistoricalWinner_IgnoresLaterKnowledge(t *testing.T) {
	t.Parallel()

	v1 := rec{id: "v1", create: day("2020-01-01"), eff: day("2020-01-01"), disc: day("2020-12-31"), expire: day("2099-01-01")}
	v2 := rec{id: "v2", create: day("2020-06-01"), eff: day("2020-01-01"), disc: day("2020-12-31"), expire: day("2099-01-01")}

	w, ok := effectivity.HistoricalWinner([]rec{v1, v2}, day("2020-07-01"), day("2020-03-01"))
	require.True(t, ok)
	assert.Equal(t, "v1", w.id, "v2 was not known on the ticketing date")
}

func TestRemoveMatching_DoesNotTouchSource(t *testing.T) {
	t.Parallel()

	in := rec{id: "in", eff: day("2020-01-01"), disc: day("2020-12-31"), expire: day("2099-01-01")}
	out := rec{id: "out", eff: day("2019-01-01"), disc: day("2019-12-31"), expire: day("2099-01-01")}
	src := []rec{out, in, out}

	got := effectivity.RemoveMatching(nil, src, effectivity.NotEffective[rec](day("2020-05-05"), day("2020-05-05")))
	require.Len(t, got, 1)
	assert.Equal(t, "in", got[0].id)
	assert.Equal(t, []rec{out, in, out}, src)
	assert.False(t, effectivity.All(src, effectivity.Effective[rec](day("2020-05-05"), day("2020-05-05"))))
}

func TestWinnersBy_OnePerIdentity(t *testing.T) {
	t.Parallel()

	mk := func(id string, create string) rec {
		return rec{id: id, create: day(create), eff: day("2020-01-01"), disc: day("2020-12-31"), expire: day("2099-01-01")}
	}
	records := []rec{mk("A", "2020-01-01"), mk("B", "2020-01-01"), mk("A", "2020-03-01"), mk("B", "2019-01-01")}

	got := effectivity.WinnersBy(nil, records, func(r rec) string { return r.id },
		effectivity.Effective[rec](day("2020-04-01"), day("2020-04-01")))

	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].id)
	assert.Equal(t, day("2020-03-01"), got[0].create)
	assert.Equal(t, "B", got[1].id)
	assert.Equal(t, day("2020-01-01"), got[1].create)
}
