package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the day format accepted by date-based task submission.
const DateLayout = "2006-01-02"

// FetchTask asks for every kline of Symbol/Interval opening in [Start, End).
// Tasks are immutable once enqueued.
type FetchTask struct {
	ID       string
	Symbol   string
	Interval Interval
	Start    time.Time
	End      time.Time // Exclusive
}

// NewFetchTask validates the request and assigns it an ID.
func NewFetchTask(symbol string, interval Interval, start, end time.Time) (FetchTask, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return FetchTask{}, fmt.Errorf("symbol is required")
	}
	if !interval.IsValid() {
		return FetchTask{}, fmt.Errorf("unsupported kline interval %q", interval)
	}
	if !start.Before(end) {
		return FetchTask{}, fmt.Errorf("start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return FetchTask{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Interval: interval,
		Start:    start.UTC(),
		End:      end.UTC(),
	}, nil
}

// NewDateTask builds a task from YYYY-MM-DD dates, start inclusive and end exclusive.
func NewDateTask(symbol string, interval Interval, startDate, endDate string) (FetchTask, error) {
	start, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		return FetchTask{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.ParseInLocation(DateLayout, endDate, time.UTC)
	if err != nil {
		return FetchTask{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	return NewFetchTask(symbol, interval, start, end)
}

func (t FetchTask) String() string {
	return fmt.Sprintf("%s %s [%s, %s)", t.Symbol, t.Interval,
		t.Start.Format(time.RFC3339), t.End.Format(time.RFC3339))
}

// Fields returns the task as structured log fields.
func (t FetchTask) Fields() map[string]interface{} {
	return map[string]interface{}{
		"taskID":   t.ID,
		"symbol":   t.Symbol,
		"interval": string(t.Interval),
		"start":    t.Start.Format(time.RFC3339),
		"end":      t.End.Format(time.RFC3339),
	}
}

// DateRange lists every UTC day from start to end, both inclusive.
func DateRange(start, end time.Time) []time.Time {
	start = truncateDay(start)
	end = truncateDay(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
