// Package accessor builds the per-record-type query surface on top of a
// cache.Store: key construction, effectivity filtering, ledger bookkeeping
// and change-feed invalidation.
//
// Current answers "what applies on date D as known today". Historical
// answers "what did we know on ticketing date T about travel date D"; its
// store is keyed by bucket.HistoricalKey so that arbitrary ticketing dates
// share a bounded number of entries. Dual routes between the two based on
// the transaction's session.Handle.
//
// Every result is valid until the ledger it was obtained with is released.
// Unfiltered results and the no-copy fast path borrow the shared entry;
// filtered results are owned copies backed by pooled buffers.
package accessor
