package tier_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/rotate/tier"
)

func TestBuckets(t *testing.T) {
	now := time.Date(2024, time.March, 5, 13, 45, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-05_13", tier.HourlyBucket(now))
	assert.Equal(t, "2024-03-05", tier.DailyBucket(now))
	assert.Equal(t, "2024-10", tier.WeeklyBucket(now))
	assert.Equal(t, "2024-03", tier.MonthlyBucket(now))
}

func TestWeeklyBucket_ISOYear(t *testing.T) {
	// 2024-12-30 is a Monday in ISO week 1 of 2025.
	assert.Equal(t, "2025-01", tier.WeeklyBucket(time.Date(2024, time.December, 30, 0, 0, 0, 0, time.UTC)))
	// 2021-01-01 is a Friday in ISO week 53 of 2020.
	assert.Equal(t, "2020-53", tier.WeeklyBucket(time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBuckets_Coarsening(t *testing.T) {
	morning := time.Date(2024, time.January, 3, 0, 0, 1, 0, time.UTC)
	evening := time.Date(2024, time.January, 3, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, tier.DailyBucket(morning), tier.DailyBucket(evening))
	assert.NotEqual(t, tier.HourlyBucket(morning), tier.HourlyBucket(evening))

	sunday := time.Date(2024, time.January, 7, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2024, time.January, 8, 12, 0, 0, 0, time.UTC)
	assert.NotEqual(t, tier.WeeklyBucket(sunday), tier.WeeklyBucket(monday))
	assert.Equal(t, tier.WeeklyBucket(morning), tier.WeeklyBucket(sunday))
	assert.Equal(t, tier.MonthlyBucket(sunday), tier.MonthlyBucket(monday))

	// Same day in different weeks of the year always differs.
	for d := 0; d < 365; d += 7 {
		a := morning.AddDate(0, 0, d)
		b := a.AddDate(0, 0, 7)
		assert.NotEqual(t, tier.WeeklyBucket(a), tier.WeeklyBucket(b), "weeks of %s and %s", a, b)
	}
}

func TestNewCatalog(t *testing.T) {
	root := t.TempDir()
	c, err := tier.NewCatalog(root, tier.Retention{Hours: 24, Days: 7, Weeks: 4, Months: 0})
	require.NoError(t, err)

	assert.Equal(t, root, c.Root())
	staging := c.Staging()
	assert.Equal(t, tier.Hourly, staging.Key)
	assert.Equal(t, filepath.Join(root, "hourly"), staging.Dir)
	assert.Equal(t, 24, staging.Retention)

	now := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	slots := c.Tiers(now)
	require.Len(t, slots, 3)

	assert.Equal(t, tier.Daily, slots[0].Key)
	assert.Equal(t, "2024-01-01", slots[0].Pattern)
	assert.Equal(t, filepath.Join(root, "daily"), slots[0].Dir)
	assert.Equal(t, 7, slots[0].Retention)

	assert.Equal(t, tier.Weekly, slots[1].Key)
	assert.Equal(t, "2024-01", slots[1].Pattern)
	assert.Equal(t, 4, slots[1].Retention)

	assert.Equal(t, tier.Monthly, slots[2].Key)
	assert.Equal(t, "2024-01", slots[2].Pattern)
	assert.Equal(t, 0, slots[2].Retention)

	weekly, ok := c.Lookup(tier.Weekly)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "weekly"), weekly.Dir)
	_, ok = c.Lookup(tier.Key("yearly"))
	assert.False(t, ok)
}

func TestNewCatalog_Invalid(t *testing.T) {
	_, err := tier.NewCatalog("", tier.Retention{})
	assert.True(t, errors.Is(err, tier.ErrInvalidCatalog))

	_, err = tier.NewCatalog(t.TempDir(), tier.Retention{Weeks: -1})
	assert.True(t, errors.Is(err, tier.ErrInvalidCatalog))
}

func TestNewCatalog_WithBucketFunc(t *testing.T) {
	calls := 0
	c, err := tier.NewCatalog(t.TempDir(), tier.Retention{Days: 1}, tier.WithBucketFunc(tier.Daily, func(time.Time) string {
		calls++
		return "fixed"
	}))
	require.NoError(t, err)

	slots := c.Tiers(time.Now())
	assert.Equal(t, "fixed", slots[0].Pattern)
	assert.Equal(t, 1, calls)
}
