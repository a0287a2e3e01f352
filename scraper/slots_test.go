package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchSlotsShape(t *testing.T) {
	for batch, days := range BatchSlots {
		assert.Len(t, days, 5, "batch %d", batch)
		for i, day := range days {
			assert.Equal(t, "Day"+string(rune('1'+i)), day.DayOrder)
			assert.Len(t, day.Slots, len(day.Times), "batch %d %s", batch, day.DayOrder)
		}
	}
}

func TestForBatch(t *testing.T) {
	days, ok := BatchSlots.ForBatch(2)
	assert.True(t, ok)
	assert.Equal(t, "P1", days[0].Slots[0])

	days, ok = BatchSlots.ForBatch(3)
	assert.False(t, ok)
	assert.Equal(t, BatchSlots[DefaultBatch], days)
}
