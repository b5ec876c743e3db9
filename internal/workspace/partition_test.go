package workspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestPartitionInclusiveRange(t *testing.T) {
	days := Partition(date(2026, 4, 29), date(2026, 5, 2))
	require.Len(t, days, 4)

	want := []*time.Time{date(2026, 4, 29), date(2026, 4, 30), date(2026, 5, 1), date(2026, 5, 2)}
	seen := map[string]bool{}
	for i, day := range days {
		assert.Equal(t, i+1, day.DayNo)
		require.NotNil(t, day.PlanDate)
		assert.True(t, want[i].Equal(*day.PlanDate), "day %d date = %s", i+1, day.PlanDate)
		assert.NotEmpty(t, day.ID)
		assert.False(t, seen[day.ID], "duplicate plan day id")
		seen[day.ID] = true
	}
}

func TestPartitionSingleDay(t *testing.T) {
	start := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	end := time.Date(2026, 7, 1, 21, 0, 0, 0, time.UTC)
	days := Partition(&start, &end)
	require.Len(t, days, 1)
	assert.Equal(t, 1, days[0].DayNo)
	assert.True(t, date(2026, 7, 1).Equal(*days[0].PlanDate))
}

func TestPartitionTruncatesToUTCDay(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	// 2026-03-02 01:00 KST is still 2026-03-01 in UTC.
	start := time.Date(2026, 3, 2, 1, 0, 0, 0, seoul)
	end := time.Date(2026, 3, 2, 23, 0, 0, 0, seoul)
	days := Partition(&start, &end)
	require.Len(t, days, 2)
	assert.True(t, date(2026, 3, 1).Equal(*days[0].PlanDate))
	assert.True(t, date(2026, 3, 2).Equal(*days[1].PlanDate))
}

func TestPartitionMissingOrInvertedBounds(t *testing.T) {
	cases := []struct {
		name       string
		start, end *time.Time
	}{
		{name: "no start", end: date(2026, 1, 2)},
		{name: "no end", start: date(2026, 1, 2)},
		{name: "neither"},
		{name: "inverted", start: date(2026, 1, 3), end: date(2026, 1, 2)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			days := Partition(tc.start, tc.end)
			assert.NotNil(t, days)
			assert.Empty(t, days)
		})
	}
}

func TestPartitionAcrossLeapDay(t *testing.T) {
	days := Partition(date(2028, 2, 28), date(2028, 3, 1))
	require.Len(t, days, 3)
	assert.True(t, date(2028, 2, 29).Equal(*days[1].PlanDate))
}
