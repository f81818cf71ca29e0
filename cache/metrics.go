package cache

import "time"

// NoopMetrics is the default Metrics implementation; it does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                      {}
func (NoopMetrics) Miss()                     {}
func (NoopMetrics) Evict(EvictReason)         {}
func (NoopMetrics) Size(int64, int64)         {}
func (NoopMetrics) Load(time.Duration, error) {}
func (NoopMetrics) StaleServed()              {}

var _ Metrics = NoopMetrics{}
