package models

// Subscription is the active filter set of one realtime connection.
// A subscribe call replaces the whole set; it is never additive.
type Subscription struct {
	ConnectionID string
	Channel      string
	Symbols      map[string]struct{}
	Intervals    map[Interval]struct{}
}

// NewSubscription builds a subscription from raw client input.
func NewSubscription(connID, channel string, symbols []string, intervals []string) *Subscription {
	s := &Subscription{
		ConnectionID: connID,
		Channel:      channel,
		Symbols:      make(map[string]struct{}, len(symbols)),
		Intervals:    make(map[Interval]struct{}, len(intervals)),
	}
	for _, sym := range symbols {
		if sym != "" {
			s.Symbols[sym] = struct{}{}
		}
	}
	for _, raw := range intervals {
		if iv, ok := ParseInterval(raw); ok {
			s.Intervals[iv] = struct{}{}
		}
	}
	return s
}

// Matches reports whether a snapshot for (symbol, interval) intersects the
// filter set. An empty symbol set matches nothing; an empty interval set
// matches every interval, including interval-less metrics.
func (s *Subscription) Matches(symbol string, interval Interval) bool {
	if s == nil {
		return false
	}
	if _, ok := s.Symbols[symbol]; !ok {
		return false
	}
	if len(s.Intervals) == 0 || interval == "" {
		return true
	}
	_, ok := s.Intervals[interval]
	return ok
}
