// Package session provides the per-transaction data handle accessors are
// called with: an ownership ledger, the ticketing date, and the decision
// whether this transaction reads historical or current data.
package session

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/cache"
	"github.com/IvanBrykalov/farecache/ledger"
)

// Options configures new handles.
type Options struct {
	// HistoricalEnabled is the process-wide switch; with it off every
	// transaction reads current data.
	HistoricalEnabled bool
	// LedgerSize pre-sizes the borrowed set.
	LedgerSize int
	Logger     *zap.Logger
	// Clock overrides the time source (tests). Nil => time.Now().
	Clock cache.Clock
}

// Handle is one transaction's view of the fare data. Not safe for
// concurrent use; create a child per goroutine and Merge it back.
type Handle struct {
	id         uuid.UUID
	ticketDate time.Time
	historical bool
	opt        Options

	ledger *ledger.Ledger
	log    *zap.Logger
}

// New opens a handle for a transaction ticketed at ticketDate. A zero
// ticketDate means "now".
func New(ticketDate time.Time, opt Options) *Handle {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	id := uuid.New()
	h := &Handle{
		id:     id,
		opt:    opt,
		ledger: ledger.New(opt.LedgerSize),
		log:    opt.Logger.With(zap.String("trx", id.String())),
	}
	h.SetTicketDate(ticketDate)
	return h
}

// SetTicketDate changes the ticketing date and re-evaluates historical mode.
func (h *Handle) SetTicketDate(d time.Time) {
	now := cache.Now(h.opt.Clock)
	if d.IsZero() {
		d = now
	}
	h.ticketDate = d
	h.historical = h.opt.HistoricalEnabled && d.Before(now)
}

// ID identifies the transaction in logs.
func (h *Handle) ID() uuid.UUID { return h.id }

// TicketDate is the "as of when do we know this" date.
func (h *Handle) TicketDate() time.Time { return h.ticketDate }

// IsHistorical reports whether accessors must answer as of TicketDate
// rather than from current data.
func (h *Handle) IsHistorical() bool { return h.historical }

// Ledger returns the ownership scope of the transaction.
func (h *Handle) Ledger() *ledger.Ledger { return h.ledger }

// Logger returns a logger tagged with the transaction id.
func (h *Handle) Logger() *zap.Logger { return h.log }

// Child opens a handle sharing the transaction id and dates, with its own
// ledger, for use on another goroutine.
func (h *Handle) Child() *Handle {
	return &Handle{
		id:         h.id,
		ticketDate: h.ticketDate,
		historical: h.historical,
		opt:        h.opt,
		ledger:     ledger.New(0),
		log:        h.log,
	}
}

// Merge takes over everything child borrowed and owns.
func (h *Handle) Merge(child *Handle) {
	h.ledger.Import(child.ledger)
}

// Close releases the ledger. Data obtained through the handle must not be
// used afterwards.
func (h *Handle) Close() {
	h.ledger.Release()
}
