package domain

import (
	"fmt"
	"time"
)

// Interval is a Binance kline interval such as "1m" or "4h".
type Interval string

const (
	Interval1s  Interval = "1s"
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M" // Calendar month, variable width
)

var intervalDurations = map[Interval]time.Duration{
	Interval1s:  time.Second,
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval6h:  6 * time.Hour,
	Interval8h:  8 * time.Hour,
	Interval12h: 12 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval3d:  3 * 24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
}

// ParseInterval validates s against the intervals the exchange accepts.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if iv == Interval1M {
		return iv, nil
	}
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("unsupported kline interval %q", s)
	}
	return iv, nil
}

// IsValid reports whether the interval is one the exchange accepts.
func (i Interval) IsValid() bool {
	_, err := ParseInterval(string(i))
	return err == nil
}

// Duration returns the nominal bar width. For the monthly interval it
// returns 30 days; use Next for exact calendar arithmetic.
func (i Interval) Duration() time.Duration {
	if i == Interval1M {
		return 30 * 24 * time.Hour
	}
	return intervalDurations[i]
}

// Next returns the open time of the bar following the one opened at t.
func (i Interval) Next(t time.Time) time.Time {
	if i == Interval1M {
		return t.AddDate(0, 1, 0)
	}
	return t.Add(intervalDurations[i])
}

// Truncate rounds t down to the start of the bar containing it (UTC).
func (i Interval) Truncate(t time.Time) time.Time {
	t = t.UTC()
	if i == Interval1M {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t.Truncate(intervalDurations[i])
}

// BarsBetween counts how many bars open in [start, end).
func (i Interval) BarsBetween(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	if i != Interval1M {
		return int(end.Sub(start) / intervalDurations[i])
	}
	n := 0
	for t := start; t.Before(end); t = t.AddDate(0, 1, 0) {
		n++
	}
	return n
}

func (i Interval) String() string {
	return string(i)
}
