package tier

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

var ErrInvalidCatalog = errors.New("invalid tier catalog")

type Key string

const (
	Hourly  Key = "hourly"
	Daily   Key = "daily"
	Weekly  Key = "weekly"
	Monthly Key = "monthly"
)

func (k Key) Valid() bool {
	switch k {
	case Hourly, Daily, Weekly, Monthly:
		return true
	}
	return false
}

// BucketFunc maps an instant to the time bucket it belongs to in a tier.
type BucketFunc func(now time.Time) string

func HourlyBucket(now time.Time) string {
	return now.Format("2006-01-02_15")
}

func DailyBucket(now time.Time) string {
	return now.Format("2006-01-02")
}

// WeeklyBucket uses the ISO year, so the last days of December can belong
// to week 1 of the following year.
func WeeklyBucket(now time.Time) string {
	year, week := now.ISOWeek()
	return fmt.Sprintf("%04d-%02d", year, week)
}

func MonthlyBucket(now time.Time) string {
	return now.Format("2006-01")
}

// Retention holds the number of artifacts to keep per tier.
type Retention struct {
	Hours  int
	Days   int
	Weeks  int
	Months int
}

func (r Retention) of(k Key) int {
	switch k {
	case Hourly:
		return r.Hours
	case Daily:
		return r.Days
	case Weekly:
		return r.Weeks
	case Monthly:
		return r.Months
	}
	return 0
}

type Tier struct {
	Key       Key
	Bucket    BucketFunc
	Dir       string
	Retention int
}

// Slot is a tier bound to the bucket of one instant.
type Slot struct {
	Tier
	Pattern string
}

type Catalog struct {
	root    string
	staging Tier
	tiers   []Tier
}

type Option func(o *options)

type options struct {
	buckets map[Key]BucketFunc
}

// WithBucketFunc replaces the bucket function of a tier.
func WithBucketFunc(key Key, fn BucketFunc) Option {
	return func(o *options) {
		o.buckets[key] = fn
	}
}

func NewCatalog(root string, retention Retention, opts ...Option) (*Catalog, error) {
	o := options{
		buckets: map[Key]BucketFunc{
			Hourly:  HourlyBucket,
			Daily:   DailyBucket,
			Weekly:  WeeklyBucket,
			Monthly: MonthlyBucket,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	if root == "" {
		return nil, fmt.Errorf("%w: empty destination", ErrInvalidCatalog)
	}

	newTier := func(k Key) (Tier, error) {
		n := retention.of(k)
		if n < 0 {
			return Tier{}, fmt.Errorf("%w: negative %s retention %d", ErrInvalidCatalog, k, n)
		}
		if o.buckets[k] == nil {
			return Tier{}, fmt.Errorf("%w: no bucket function for %s", ErrInvalidCatalog, k)
		}
		return Tier{
			Key:       k,
			Bucket:    o.buckets[k],
			Dir:       filepath.Join(root, string(k)),
			Retention: n,
		}, nil
	}

	c := &Catalog{root: root}

	var err error
	c.staging, err = newTier(Hourly)
	if err != nil {
		return nil, err
	}
	for _, k := range []Key{Daily, Weekly, Monthly} {
		t, err := newTier(k)
		if err != nil {
			return nil, err
		}
		c.tiers = append(c.tiers, t)
	}

	return c, nil
}

func (c *Catalog) Root() string {
	return c.root
}

// Staging returns the hourly tier producers write into.
func (c *Catalog) Staging() Tier {
	return c.staging
}

// Tiers returns the rotation tiers (daily, weekly, monthly) bound to now.
// Every slot is computed from the same instant.
func (c *Catalog) Tiers(now time.Time) []Slot {
	slots := make([]Slot, 0, len(c.tiers))
	for _, t := range c.tiers {
		slots = append(slots, Slot{Tier: t, Pattern: t.Bucket(now)})
	}
	return slots
}

// Lookup returns any tier by key, staging included.
func (c *Catalog) Lookup(k Key) (Tier, bool) {
	if k == Hourly {
		return c.staging, true
	}
	for _, t := range c.tiers {
		if t.Key == k {
			return t, true
		}
	}
	return Tier{}, false
}
