package accessor

import (
	"context"
	"time"

	"github.com/IvanBrykalov/farecache/effectivity"
	"github.com/IvanBrykalov/farecache/keycodec"
	"github.com/IvanBrykalov/farecache/session"
)

// Dual pairs the current and historical accessors of one record type and
// routes each query by the transaction's historical mode. Historical may be
// nil for record types without a historical store.
type Dual[K comparable, R effectivity.Versioned] struct {
	Current    *Current[K, R]
	Historical *Historical[K, R]
}

func (d Dual[K, R]) historical(h *session.Handle) bool {
	return d.Historical != nil && h.IsHistorical()
}

// Get returns every cached record for k relevant to the transaction.
func (d Dual[K, R]) Get(ctx context.Context, h *session.Handle, k K) ([]R, error) {
	if d.historical(h) {
		return d.Historical.Get(ctx, h.Ledger(), k, h.TicketDate())
	}
	return d.Current.Get(ctx, h.Ledger(), k)
}

// GetEffective returns the records for k effective on date. Current mode
// checks expiry against the ticketing date; historical mode also requires
// the record to have been known on it.
func (d Dual[K, R]) GetEffective(ctx context.Context, h *session.Handle, k K, date time.Time) ([]R, error) {
	if d.historical(h) {
		return d.Historical.GetEffective(ctx, h.Ledger(), k, date, h.TicketDate())
	}
	return d.Current.GetEffective(ctx, h.Ledger(), k, date, h.TicketDate())
}

// GetWinner returns the single latest version of k effective on date.
func (d Dual[K, R]) GetWinner(ctx context.Context, h *session.Handle, k K, date time.Time) (R, bool, error) {
	if d.historical(h) {
		return d.Historical.GetWinner(ctx, h.Ledger(), k, date, h.TicketDate())
	}
	return d.Current.GetWinner(ctx, h.Ledger(), k, date, h.TicketDate())
}

// Invalidate forwards a change notification to both accessors and returns
// the total number of entries dropped. The first translation error is
// returned after both have been tried.
func (d Dual[K, R]) Invalidate(o keycodec.ObjectKey) (int, error) {
	n, err := d.Current.Invalidate(o)
	if d.Historical != nil {
		hn, herr := d.Historical.Invalidate(o)
		n += hn
		if err == nil {
			err = herr
		}
	}
	return n, err
}

// Clear drops every entry of both accessors.
func (d Dual[K, R]) Clear() int {
	n := d.Current.Clear()
	if d.Historical != nil {
		n += d.Historical.Clear()
	}
	return n
}
