package metrics

// Noop discards every observation. Used in tests and when metrics are
// disabled by configuration.
type Noop struct{}

func (Noop) RecordTick(string)               {}
func (Noop) RecordStaleTick(string)          {}
func (Noop) RecordMalformedTick()            {}
func (Noop) RecordError(string)              {}
func (Noop) RecordBroadcast(string)          {}
func (Noop) RecordBroadcastDrop()            {}
func (Noop) RecordLastPrice(string, float64) {}
func (Noop) RecordLatency(string, float64)   {}
func (Noop) SetFeedConnected(bool)           {}
func (Noop) SetConnections(int)              {}
