package printer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/stepbridge/internal/printer"
)

func TestTimeAgo(t *testing.T) {
	now := time.Now().UTC()

	tests := map[string]struct {
		time     time.Time
		expected string
	}{
		"Just now should be seconds.": {
			time:     now,
			expected: "0 seconds ago (UTC)",
		},
		"1 second ago": {
			time:     now.Add(-1 * time.Second),
			expected: "1 second ago (UTC)",
		},
		"30 seconds ago": {
			time:     now.Add(-30 * time.Second),
			expected: "30 seconds ago (UTC)",
		},
		"1 minute ago": {
			time:     now.Add(-1 * time.Minute),
			expected: "1 minute ago (UTC)",
		},
		"45 minutes ago": {
			time:     now.Add(-45 * time.Minute),
			expected: "45 minutes ago (UTC)",
		},
		"5 hours ago": {
			time:     now.Add(-5 * time.Hour),
			expected: "5 hours ago (UTC)",
		},
		"1 day ago": {
			time:     now.Add(-24 * time.Hour),
			expected: "1 day ago (UTC)",
		},
		"7 days ago": {
			time:     now.Add(-7 * 24 * time.Hour),
			expected: "7 days ago (UTC)",
		},
		"future time": {
			time:     now.Add(5 * time.Minute),
			expected: "in the future (UTC)",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(test.expected, printer.TimeAgo(test.time))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 30, 10, 15, 30, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "2026-01-30 15:15:30 UTC", printer.FormatTimestamp(ts))
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]struct {
		d        time.Duration
		expected string
	}{
		"Negative durations should be zero.":           {d: -time.Second, expected: "0s"},
		"Sub second durations should use millis.":      {d: 1234567 * time.Nanosecond, expected: "1ms"},
		"Sub minute durations should use tenths.":      {d: 2345 * time.Millisecond, expected: "2.3s"},
		"Long durations should be rounded to seconds.": {d: 90*time.Second + 400*time.Millisecond, expected: "1m30s"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.FormatDuration(test.d))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("go test", printer.Truncate("go test", 10))
	assert.Equal("go test...", printer.Truncate("go test ./... -race", 10))
}
