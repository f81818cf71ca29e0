package keycodec

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ruleKey struct {
	Vendor  string
	Carrier string
	Tariff  int
}

var ruleCodec = Fields[ruleKey]{
	String("VENDOR", func(k ruleKey) string { return k.Vendor }, func(k *ruleKey, v string) { k.Vendor = v }),
	String("CARRIER", func(k ruleKey) string { return k.Carrier }, func(k *ruleKey, v string) { k.Carrier = v }),
	{
		Name: "TARIFF",
		Get:  func(k ruleKey) string { return strconv.Itoa(k.Tariff) },
		Set: func(k *ruleKey, v string) (err error) {
			k.Tariff, err = strconv.Atoi(v)
			return err
		},
	},
}

func TestFields_RoundTrip(t *testing.T) {
	t.Parallel()

	k := ruleKey{Vendor: "ATP", Carrier: "AA", Tariff: 21}
	o := ruleCodec.Encode(k)
	assert.Equal(t, "CARRIER=AA|TARIFF=21|VENDOR=ATP", o.String())

	got, err := ruleCodec.Decode(o)
	require.NoError(t, err)
	assert.Equal(t, k, got)
}

func TestFields_Incomplete(t *testing.T) {
	t.Parallel()

	_, err := ruleCodec.Decode(ObjectKey{"VENDOR": "ATP", "CARRIER": ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteKey))
	assert.Contains(t, err.Error(), "CARRIER,TARIFF")
}

func TestFields_BadValue(t *testing.T) {
	t.Parallel()

	_, err := ruleCodec.Decode(ObjectKey{"VENDOR": "ATP", "CARRIER": "AA", "TARIFF": "x"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrIncompleteKey))
}

func TestObjectKey_Dates(t *testing.T) {
	t.Parallel()

	o := ObjectKey{}
	_, ok := o.GetDate("STARTDATE")
	assert.False(t, ok)

	o.Set("STARTDATE", "2020-05-01 00:00:00")
	d, ok := o.GetDate("STARTDATE")
	require.True(t, ok)
	assert.Equal(t, 2020, d.Year())

	o.SetDate("ENDDATE", d.AddDate(0, 1, 0))
	assert.Equal(t, "2020-06-01 00:00:00", o["ENDDATE"])

	o.Set("BAD", "yesterday")
	_, ok = o.GetDate("BAD")
	assert.False(t, ok)
}

func FuzzStringKey(f *testing.F) {
	f.Add("DFW")
	f.Add("")
	f.Add("ÅÄÖ|=")

	codec := StringKey("LOC")
	f.Fuzz(func(t *testing.T, s string) {
		got, err := codec.Decode(codec.Encode(s))
		if s == "" {
			if !errors.Is(err, ErrIncompleteKey) {
				t.Fatalf("empty key must be incomplete, got %v", err)
			}
			return
		}
		if err != nil || got != s {
			t.Fatalf("round trip %q -> %q (%v)", s, got, err)
		}
	})
}
