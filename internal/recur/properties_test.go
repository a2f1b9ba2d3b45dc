package recur

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var propertyRules = []string{
	"FREQ=DAILY;INTERVAL=3",
	"FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,WE,FR;WKST=SU",
	"FREQ=MONTHLY;BYDAY=MO,-2TU,+1WE,3TH",
	"FREQ=MONTHLY;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=1,-1",
	"FREQ=YEARLY;BYMONTH=4,10;BYDAY=1MO,-1SU",
	"FREQ=YEARLY;BYYEARDAY=-366",
	"FREQ=YEARLY;BYWEEKNO=20,50;BYDAY=TU,FR",
	"FREQ=HOURLY;INTERVAL=7;BYDAY=SA,SU",
	"FREQ=MINUTELY;INTERVAL=45;BYHOUR=8,9,16",
}

func propertyStart(t *testing.T) time.Time {
	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	return time.Date(2022, 10, 3, 2, 30, 0, 0, zurich)
}

func newTestIterator(t *testing.T, rule string, start time.Time) *Iterator {
	t.Helper()
	r, err := ParseRule(rule)
	require.NoError(t, err)
	it, err := NewIterator(r, start)
	require.NoError(t, err)
	return it
}

func TestCountYieldsExactly(t *testing.T) {
	for _, rule := range propertyRules {
		for _, n := range []int{1, 5, 37} {
			it := newTestIterator(t, rule+";COUNT="+strconv.Itoa(n), propertyStart(t))
			got := it.Take(n + 10)
			assert.Len(t, got, n, rule)
			assert.False(t, it.Valid(), rule)
		}
	}
}

func TestUntilBoundsAndSkipsNothing(t *testing.T) {
	start := propertyStart(t)
	until := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	for _, rule := range propertyRules {
		bounded := newTestIterator(t, rule+";UNTIL=20240331T120000Z", start)
		got := bounded.Take(100000)
		for _, o := range got {
			assert.False(t, o.After(until), rule)
		}

		// the unbounded rule, cut at the same instant, is the same sequence
		free := newTestIterator(t, rule, start)
		var want []time.Time
		for free.Valid() && !free.Current().After(until) {
			want = append(want, free.Current())
			free.Next()
		}
		assert.Equal(t, formatAll(want), formatAll(got), rule)
	}
}

func TestStrictlyIncreasing(t *testing.T) {
	for _, rule := range propertyRules {
		it := newTestIterator(t, rule, propertyStart(t))
		got := it.Take(300)
		require.NotEmpty(t, got)
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i].After(got[i-1]), "%s: %v then %v", rule, got[i-1], got[i])
		}
	}
}

func TestFastForwardMatchesFiltering(t *testing.T) {
	start := propertyStart(t)
	targets := []time.Time{
		start.Add(-time.Hour),
		start.Add(36 * time.Hour),
		time.Date(2023, 3, 26, 1, 30, 0, 0, time.UTC),
		time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, rule := range propertyRules {
		full := newTestIterator(t, rule, start).Take(2000)
		for _, target := range targets {
			var want []time.Time
			for _, o := range full {
				if !o.Before(target) {
					want = append(want, o)
				}
			}
			if len(want) > 20 {
				want = want[:20]
			}
			if len(want) < 20 {
				continue
			}

			it := newTestIterator(t, rule, start)
			it.FastForward(target)
			assert.Equal(t, formatAll(want), formatAll(it.Take(20)), "%s from %v", rule, target)
		}
	}
}

func TestRewindReproduces(t *testing.T) {
	for _, rule := range propertyRules {
		it := newTestIterator(t, rule, propertyStart(t))
		first := it.Take(50)
		it.Rewind()
		assert.Equal(t, 0, it.Key())
		assert.Equal(t, formatAll(first), formatAll(it.Take(50)), rule)
	}
}

func TestDailyIntervalUntil(t *testing.T) {
	it := newTestIterator(t, "FREQ=DAILY;INTERVAL=3;UNTIL=20111025T000000Z", time.Date(2011, 10, 7, 0, 0, 0, 0, time.UTC))
	got := it.Take(100)
	assert.Equal(t, []string{
		"2011-10-07 00:00:00", "2011-10-10 00:00:00", "2011-10-13 00:00:00", "2011-10-16 00:00:00",
		"2011-10-19 00:00:00", "2011-10-22 00:00:00", "2011-10-25 00:00:00",
	}, formatAll(got))
}

func TestWeekNumbering(t *testing.T) {
	cases := []struct {
		date     time.Time
		wkst     time.Weekday
		year, no int
	}{
		{time.Date(2011, 1, 2, 0, 0, 0, 0, time.UTC), time.Monday, 2010, 52},
		{time.Date(2011, 1, 3, 0, 0, 0, 0, time.UTC), time.Monday, 2011, 1},
		{time.Date(2012, 12, 31, 0, 0, 0, 0, time.UTC), time.Monday, 2013, 1},
		{time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC), time.Monday, 2015, 53},
		{time.Date(2011, 1, 2, 0, 0, 0, 0, time.UTC), time.Sunday, 2011, 1},
	}
	for _, c := range cases {
		y, n := weekNumber(c.date, c.wkst)
		assert.Equal(t, c.year, y, c.date.String())
		assert.Equal(t, c.no, n, c.date.String())
	}
	assert.Equal(t, 53, numWeeks(2015, time.Monday))
	assert.Equal(t, 52, numWeeks(2011, time.Monday))
}
