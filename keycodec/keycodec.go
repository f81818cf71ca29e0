// Package keycodec translates between structured cache keys and the generic
// name→value form used by the change-notification feed. A notification says
// "row NATION=US, TAXPOINTTAG=D changed"; the codec turns that into the cache
// key to evict, and back again for diagnostics.
package keycodec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrIncompleteKey is returned when an ObjectKey lacks a required field.
// It is a caller or configuration error and is never retried.
var ErrIncompleteKey = errors.New("keycodec: incomplete key")

// DateLayout is the wire layout of date-valued fields.
const DateLayout = time.DateTime

// ObjectKey is a generic name→value key description.
type ObjectKey map[string]string

// Get returns the value for name and whether it is present and non-empty.
func (o ObjectKey) Get(name string) (string, bool) {
	v, ok := o[name]
	return v, ok && v != ""
}

// Set stores a value.
func (o ObjectKey) Set(name, value string) { o[name] = value }

// GetDate parses a date-valued field.
func (o ObjectKey) GetDate(name string) (time.Time, bool) {
	v, ok := o.Get(name)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetDate stores a date-valued field.
func (o ObjectKey) SetDate(name string, t time.Time) { o[name] = t.UTC().Format(DateLayout) }

// String renders the key with sorted names, e.g. "NATION=US|TAXPOINTTAG=D".
func (o ObjectKey) String() string {
	names := make([]string, 0, len(o))
	for n := range o {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(o[n])
	}
	return b.String()
}

// Codec converts between a structured key K and an ObjectKey.
type Codec[K any] interface {
	Decode(ObjectKey) (K, error)
	Encode(K) ObjectKey
}

// Field describes one named component of a key.
type Field[K any] struct {
	Name string
	Get  func(K) string
	// Set parses value into k. A nil Set stores nothing (encode-only field).
	Set func(k *K, value string) error
}

// Fields is a declarative Codec: every field is required on Decode.
type Fields[K any] []Field[K]

// Decode fills a K from o. Missing fields are all reported at once.
func (fs Fields[K]) Decode(o ObjectKey) (K, error) {
	var (
		k       K
		missing []string
	)
	for _, f := range fs {
		v, ok := o.Get(f.Name)
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		if f.Set == nil {
			continue
		}
		if err := f.Set(&k, v); err != nil {
			return k, fmt.Errorf("keycodec: field %s: %w", f.Name, err)
		}
	}
	if len(missing) > 0 {
		return k, fmt.Errorf("%w: missing %s in %s", ErrIncompleteKey, strings.Join(missing, ","), o)
	}
	return k, nil
}

// Encode renders k as an ObjectKey.
func (fs Fields[K]) Encode(k K) ObjectKey {
	o := make(ObjectKey, len(fs))
	for _, f := range fs {
		o[f.Name] = f.Get(k)
	}
	return o
}

// String builds a Field for a string component.
func String[K any](name string, get func(K) string, set func(*K, string)) Field[K] {
	return Field[K]{
		Name: name,
		Get:  get,
		Set: func(k *K, v string) error {
			set(k, v)
			return nil
		},
	}
}

// StringKey is the codec for record types keyed by a single code.
func StringKey(name string) Codec[string] {
	return Fields[string]{String(name,
		func(k string) string { return k },
		func(k *string, v string) { *k = v })}
}

var _ Codec[string] = Fields[string]{}
