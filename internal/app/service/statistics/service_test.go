package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydocs/billing/internal/models"
)

func TestFillMissingDays(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 3)
	items := []*DailyEventCount{
		{Day: from.AddDate(0, 0, 1), Status: models.BillingEventStatusCompleted, Count: 4},
		{Day: from.AddDate(0, 0, 1), Status: models.BillingEventStatusFailed, Count: 1},
	}

	out := FillMissingDays(items, from, to)

	require.Len(t, out, 4)
	assert.Equal(t, from, out[0].Day)
	assert.Equal(t, int64(0), out[0].Count)
	assert.Equal(t, int64(4), out[1].Count)
	assert.Equal(t, int64(1), out[2].Count)
	assert.Equal(t, from.AddDate(0, 0, 2), out[3].Day)
	assert.Equal(t, int64(0), out[3].Count)
}

func TestFillMissingDays_EmptyInput(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := FillMissingDays(nil, from, from.AddDate(0, 0, 2))

	require.Len(t, out, 2)
	for _, row := range out {
		assert.Equal(t, int64(0), row.Count)
	}
}
