package models

import "time"

// Interval is a chart aggregation window.
type Interval string

const (
	Interval15Min Interval = "15Min"
	Interval60Min Interval = "60Min"
	IntervalDay   Interval = "Day"
)

// Intervals lists all supported windows in ascending width.
func Intervals() []Interval {
	return []Interval{Interval15Min, Interval60Min, IntervalDay}
}

// ParseInterval normalizes a client-supplied interval string.
func ParseInterval(s string) (Interval, bool) {
	switch s {
	case "15", "15m", "15Min":
		return Interval15Min, true
	case "60", "60m", "1h", "60Min":
		return Interval60Min, true
	case "1d", "day", "Day":
		return IntervalDay, true
	}
	return "", false
}

// BucketStart aligns t down to the interval boundary in loc.
// A timestamp exactly on a boundary starts a new bucket. Alignment is
// wall-clock, not absolute: exchanges with half-hour zone offsets still
// get quarter-hour and top-of-hour boundaries.
func (iv Interval) BucketStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	switch iv {
	case Interval15Min:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute()-lt.Minute()%15, 0, 0, loc)
	case Interval60Min:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc)
	case IntervalDay:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	}
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute(), 0, 0, loc)
}
