package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	for _, s := range []string{"1s", "1m", "15m", "4h", "1d", "1w", "1M"} {
		iv, err := ParseInterval(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, iv.String())
		assert.True(t, iv.IsValid())
	}

	for _, s := range []string{"", "2m", "1y", "1H"} {
		_, err := ParseInterval(s)
		assert.Error(t, err, s)
	}
}

func TestInterval_Next(t *testing.T) {
	base := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, base.Add(time.Minute), Interval1m.Next(base))
	assert.Equal(t, base.Add(4*time.Hour), Interval4h.Next(base))

	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Interval1M.Next(feb))
}

func TestInterval_Truncate(t *testing.T) {
	ts := time.Date(2024, 5, 17, 13, 47, 29, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 5, 17, 13, 47, 0, 0, time.UTC), Interval1m.Truncate(ts))
	assert.Equal(t, time.Date(2024, 5, 17, 13, 45, 0, 0, time.UTC), Interval15m.Truncate(ts))
	assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), Interval1d.Truncate(ts))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Interval1M.Truncate(ts))
}

func TestInterval_BarsBetween(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1440, Interval1m.BarsBetween(start, start.AddDate(0, 0, 1)))
	assert.Equal(t, 24, Interval1h.BarsBetween(start, start.AddDate(0, 0, 1)))
	assert.Equal(t, 12, Interval1M.BarsBetween(start, start.AddDate(1, 0, 0)))
	assert.Equal(t, 0, Interval1m.BarsBetween(start, start))
	assert.Equal(t, 0, Interval1m.BarsBetween(start, start.Add(-time.Hour)))
}
