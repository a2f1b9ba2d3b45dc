package recur

import "time"

// Expansion works on "civil" values: time.Time in UTC whose fields hold a
// wall clock. Arithmetic on them never crosses a DST transition.

func civil(y int, m time.Month, d, h, mi, s int) time.Time {
	return time.Date(y, m, d, h, mi, s, 0, time.UTC)
}

func wallOf(t time.Time) time.Time {
	return civil(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func dateOf(t time.Time) time.Time {
	return civil(t.Year(), t.Month(), t.Day(), 0, 0, 0)
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func yearLen(y int) int {
	if isLeap(y) {
		return 366
	}
	return 365
}

func daysIn(y int, m time.Month) int {
	return civil(y, m+1, 0, 0, 0, 0).Day()
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// weekStartOn returns the closest date on or before d that falls on wkst.
func weekStartOn(d time.Time, wkst time.Weekday) time.Time {
	back := (int(d.Weekday()) - int(wkst) + 7) % 7
	return dateOf(d).AddDate(0, 0, -back)
}

// firstWeek returns the first day of week number 1 of year y: the first
// week starting on wkst that has at least four days in y.
func firstWeek(y int, wkst time.Weekday) time.Time {
	jan1 := civil(y, time.January, 1, 0, 0, 0)
	start := weekStartOn(jan1, wkst)
	if daysBetween(start, jan1) > 3 {
		start = start.AddDate(0, 0, 7)
	}
	return start
}

func numWeeks(y int, wkst time.Weekday) int {
	return daysBetween(firstWeek(y, wkst), firstWeek(y+1, wkst)) / 7
}

// weekNumber returns the week-numbering year and the week number of d.
func weekNumber(d time.Time, wkst time.Weekday) (int, int) {
	d = dateOf(d)
	y := d.Year()
	if next := firstWeek(y+1, wkst); !d.Before(next) {
		return y + 1, 1
	}
	first := firstWeek(y, wkst)
	if d.Before(first) {
		y--
		first = firstWeek(y, wkst)
	}
	return y, daysBetween(first, d)/7 + 1
}

// resolve turns a civil wall clock into an instant in loc. Ambiguous wall
// times (fall back) map to the earlier instant. Wall times inside a
// spring-forward gap are read with the offset in force before the gap,
// which moves them forward by the size of the gap.
func resolve(w time.Time, loc *time.Location) time.Time {
	if loc == time.UTC {
		return w
	}
	n := w.Unix()
	_, before := time.Unix(n-86400, 0).In(loc).Zone()
	_, after := time.Unix(n+86400, 0).In(loc).Zone()

	var best time.Time
	found := false
	for _, off := range [2]int{before, after} {
		c := time.Unix(n-int64(off), 0).In(loc)
		if wallOf(c).Equal(w) && (!found || c.Before(best)) {
			best, found = c, true
		}
	}
	if found {
		return best
	}
	return time.Unix(n-int64(before), 0).In(loc)
}
