package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want Clock
	}{
		{"9:00 AM", Clock{9, 0}},
		{"09:00 AM", Clock{9, 0}},
		{" 12:00 PM ", Clock{12, 0}},
		{"12:10 AM", Clock{0, 10}},
		{"04:50 PM", Clock{16, 50}},
		{"03:30 pm", Clock{15, 30}},
		{"3:30pm", Clock{15, 30}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseClockRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "25:99 XM", "noon", "10 AM", "13:00 PM"} {
		_, err := ParseClock(in)
		assert.Error(t, err, in)
	}
}

func TestParseTimeRange(t *testing.T) {
	start, end, err := ParseTimeRange("9:00 AM - 10:00 AM")
	require.NoError(t, err)
	assert.Equal(t, Clock{9, 0}, start)
	assert.Equal(t, Clock{10, 0}, end)

	_, _, err = ParseTimeRange("9:00 AM")
	assert.Error(t, err)

	_, _, err = ParseTimeRange("25:99 XM - 10:00 AM")
	assert.Error(t, err)
}
