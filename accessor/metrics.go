package accessor

// Op names an accessor query shape for call counting.
type Op string

const (
	OpGet       Op = "get"
	OpEffective Op = "effective"
	OpWinner    Op = "winner"
)

// InvalidateResult classifies one change notification.
type InvalidateResult string

const (
	// InvalidateDropped: at least one entry was dropped.
	InvalidateDropped InvalidateResult = "dropped"
	// InvalidateEmpty: the key translated but nothing was resident.
	InvalidateEmpty InvalidateResult = "empty"
	// InvalidateBadKey: the key could not be translated.
	InvalidateBadKey InvalidateResult = "bad_key"
)

// Metrics receives accessor-level signals. Store-level signals (hits,
// misses, loads) go to cache.Metrics.
type Metrics interface {
	Call(op Op)
	// Copy is reported for every filtered result: copied is false when the
	// no-copy fast path returned the shared entry.
	Copy(copied bool)
	Invalidate(result InvalidateResult, dropped int)
}

// NoopMetrics is the default Metrics implementation; it does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Call(Op)                         {}
func (NoopMetrics) Copy(bool)                       {}
func (NoopMetrics) Invalidate(InvalidateResult, int) {}

var _ Metrics = NoopMetrics{}
