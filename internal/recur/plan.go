package recur

import (
	"math"
	"sort"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// beyond is a cursor past every supported occurrence.
var beyond = civil(maxYear+1, time.January, 1, 0, 0, 0)

// plan is a rule with its defaults filled in from the start and with every
// part that does not apply to the frequency dropped.
type plan struct {
	freq     Frequency
	interval int
	wkst     time.Weekday

	seconds, minutes, hours []int
	explicitHours           bool

	months    []int
	weekNos   []int
	yearDays  []int
	monthDays []int
	weekdays  []time.Weekday
	nth       []WeekdayNum
	setPos    []int
}

func newPlan(r *Rule, start time.Time) plan {
	p := plan{
		freq:     r.Freq,
		interval: r.Interval,
		wkst:     r.WeekStart,
		months:   sortedSet(r.ByMonth),
		setPos:   r.BySetPos,
	}
	if p.freq == Yearly {
		p.weekNos = r.ByWeekNo
	}
	if p.freq == Yearly || p.freq < Daily {
		p.yearDays = r.ByYearDay
	}
	if p.freq != Weekly {
		p.monthDays = r.ByMonthDay
	}
	for _, d := range r.ByDay {
		ordinal := d.N != 0 && (p.freq == Monthly || (p.freq == Yearly && len(p.weekNos) == 0))
		if ordinal {
			p.nth = append(p.nth, d)
		} else if !hasWeekday(p.weekdays, d.Weekday) {
			p.weekdays = append(p.weekdays, d.Weekday)
		}
	}

	noDayPart := len(p.weekNos) == 0 && len(p.yearDays) == 0 && len(p.monthDays) == 0 && len(r.ByDay) == 0
	switch {
	case noDayPart && p.freq == Yearly:
		if len(p.months) == 0 {
			p.months = []int{int(start.Month())}
		}
		p.monthDays = []int{start.Day()}
	case noDayPart && p.freq == Monthly:
		p.monthDays = []int{start.Day()}
	case noDayPart && p.freq == Weekly:
		p.weekdays = []time.Weekday{start.Weekday()}
	case p.freq == Yearly && len(p.weekNos) > 0 && len(r.ByDay) == 0 && len(p.yearDays) == 0 && len(p.monthDays) == 0:
		p.weekdays = []time.Weekday{start.Weekday()}
	}

	p.explicitHours = len(r.ByHour) > 0
	p.hours = timeList(r.ByHour, p.freq >= Daily, start.Hour())
	p.minutes = timeList(r.ByMinute, p.freq >= Hourly, start.Minute())
	p.seconds = timeList(r.BySecond, p.freq >= Minutely, start.Second())
	return p
}

func timeList(list []int, useDefault bool, def int) []int {
	if len(list) > 0 {
		return sortedSet(list)
	}
	if useDefault {
		return []int{def}
	}
	return nil
}

// firstPeriod returns the cursor of the period holding start.
func (p *plan) firstPeriod(start time.Time) time.Time {
	switch p.freq {
	case Yearly:
		return civil(start.Year(), time.January, 1, 0, 0, 0)
	case Monthly:
		return civil(start.Year(), start.Month(), 1, 0, 0, 0)
	case Weekly:
		return weekStartOn(start, p.wkst)
	case Daily:
		return dateOf(start)
	case Hourly:
		return civil(start.Year(), start.Month(), start.Day(), start.Hour(), 0, 0)
	case Minutely:
		return civil(start.Year(), start.Month(), start.Day(), start.Hour(), start.Minute(), 0)
	default:
		return start
	}
}

// advance moves the cursor forward by steps intervals. A move that would
// leave the supported years lands on beyond instead.
func (p *plan) advance(cursor time.Time, steps int) time.Time {
	if steps > math.MaxInt/p.interval {
		return beyond
	}
	n := steps * p.interval
	switch p.freq {
	case Yearly:
		if n > maxYear {
			return beyond
		}
		return civil(cursor.Year()+n, time.January, 1, 0, 0, 0)
	case Monthly:
		if n > 12*maxYear {
			return beyond
		}
		return civil(cursor.Year(), cursor.Month()+time.Month(n), 1, 0, 0, 0)
	case Weekly:
		if n > 53*maxYear {
			return beyond
		}
		return cursor.AddDate(0, 0, 7*n)
	case Daily:
		if n > 366*maxYear {
			return beyond
		}
		return cursor.AddDate(0, 0, n)
	default:
		// Whole days go through the calendar; a Duration only holds about
		// 292 years.
		unit := int(p.unit() / time.Second)
		if n > 366*maxYear*secondsPerDay/unit {
			return beyond
		}
		secs := n * unit
		return cursor.AddDate(0, 0, secs/secondsPerDay).Add(time.Duration(secs%secondsPerDay) * time.Second)
	}
}

func (p *plan) unit() time.Duration {
	switch p.freq {
	case Hourly:
		return time.Hour
	case Minutely:
		return time.Minute
	case Secondly:
		return time.Second
	case Weekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// stepsUntil returns how many whole intervals fit between cursor and target.
func (p *plan) stepsUntil(cursor, target time.Time) int {
	if target.After(beyond) {
		target = beyond
	}
	var units int64
	switch p.freq {
	case Yearly:
		units = int64(target.Year() - cursor.Year())
	case Monthly:
		units = int64(target.Year()-cursor.Year())*12 + int64(target.Month()-cursor.Month())
	default:
		units = (target.Unix() - cursor.Unix()) / int64(p.unit()/time.Second)
	}
	if units <= 0 {
		return 0
	}
	return int(units / int64(p.interval))
}

// periodStart is the earliest wall clock a period can produce.
func (p *plan) periodStart(cursor time.Time) time.Time {
	if p.freq == Yearly && p.prependsLastYear(cursor.Year()) {
		return cursor.AddDate(0, 0, -1)
	}
	return cursor
}

// prependsLastYear reports whether BYYEARDAY=-366 reaches back to December
// 31 of the previous year, which happens in years that are not leap years.
func (p *plan) prependsLastYear(y int) bool {
	return !isLeap(y) && hasInt(p.yearDays, -366)
}

// expand returns the wall clocks produced by the period under cursor, sorted
// and with BYSETPOS applied, plus the number of intervals to move on. Only
// the sub-daily frequencies ever skip more than one interval: they jump over
// the rest of a day, hour or minute that can never match.
func (p *plan) expand(cursor time.Time) ([]time.Time, int) {
	var days []time.Time
	switch p.freq {
	case Yearly:
		y := cursor.Year()
		if p.prependsLastYear(y) {
			days = append(days, cursor.AddDate(0, 0, -1))
		}
		for d := cursor; d.Year() == y; d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
	case Monthly:
		for d := cursor; d.Month() == cursor.Month(); d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
	case Weekly:
		for i := 0; i < 7; i++ {
			days = append(days, cursor.AddDate(0, 0, i))
		}
	default:
		days = []time.Time{dateOf(cursor)}
	}

	var matched []time.Time
	for _, d := range days {
		if p.dayMatches(d, cursor.Year()) {
			matched = append(matched, d)
		}
	}

	if p.freq < Daily {
		if len(matched) == 0 {
			return nil, p.skipRest(cursor, 24*time.Hour)
		}
		if len(p.hours) > 0 && !hasInt(p.hours, cursor.Hour()) {
			return nil, p.skipRest(cursor, time.Hour)
		}
		if p.freq < Hourly && len(p.minutes) > 0 && !hasInt(p.minutes, cursor.Minute()) {
			return nil, p.skipRest(cursor, time.Minute)
		}
	}

	var out []time.Time
	for _, d := range matched {
		for _, hms := range p.timesFor(cursor) {
			out = append(out, civil(d.Year(), d.Month(), d.Day(), hms[0], hms[1], hms[2]))
		}
	}
	if len(p.setPos) > 0 {
		out = selectPositions(out, p.setPos)
	}
	return out, 1
}

// skipRest returns the number of intervals needed to leave the current span
// (day, hour or minute) that cursor sits in, keeping interval alignment.
func (p *plan) skipRest(cursor time.Time, span time.Duration) int {
	unit := p.unit()
	elapsed := cursor.Sub(cursor.Truncate(span)) / unit
	remaining := int(span/unit - elapsed)
	if remaining <= p.interval {
		return 1
	}
	return (remaining + p.interval - 1) / p.interval
}

func (p *plan) timesFor(cursor time.Time) [][3]int {
	hours, minutes, seconds := p.hours, p.minutes, p.seconds
	if p.freq <= Hourly {
		hours = []int{cursor.Hour()}
	}
	if p.freq <= Minutely {
		minutes = []int{cursor.Minute()}
	}
	if p.freq == Secondly {
		if len(seconds) > 0 && !hasInt(seconds, cursor.Second()) {
			return nil
		}
		seconds = []int{cursor.Second()}
	}
	out := make([][3]int, 0, len(hours)*len(minutes)*len(seconds))
	for _, h := range hours {
		for _, m := range minutes {
			for _, s := range seconds {
				out = append(out, [3]int{h, m, s})
			}
		}
	}
	return out
}

// dayMatches applies the date filters to d. periodYear anchors BYYEARDAY and
// yearly BYDAY ordinals for the yearly frequency.
func (p *plan) dayMatches(d time.Time, periodYear int) bool {
	if len(p.months) > 0 && !hasInt(p.months, int(d.Month())) {
		return false
	}
	if len(p.weekNos) > 0 && !p.weekNoMatches(d) {
		return false
	}
	if len(p.yearDays) > 0 {
		y := d.Year()
		if p.freq == Yearly {
			y = periodYear
		}
		if !yearDayMatches(p.yearDays, d, y) {
			return false
		}
	}
	if len(p.monthDays) > 0 && !monthDayMatches(p.monthDays, d) {
		return false
	}
	if len(p.weekdays) == 0 && len(p.nth) == 0 {
		return true
	}
	if hasWeekday(p.weekdays, d.Weekday()) {
		return true
	}
	for _, w := range p.nth {
		if w.Weekday == d.Weekday() && p.ordinalMatches(w.N, d) {
			return true
		}
	}
	return false
}

func (p *plan) weekNoMatches(d time.Time) bool {
	wy, n := weekNumber(d, p.wkst)
	total := numWeeks(wy, p.wkst)
	for _, k := range p.weekNos {
		if k == n || (k < 0 && total+1+k == n) {
			return true
		}
	}
	return false
}

func yearDayMatches(list []int, d time.Time, y int) bool {
	yd := daysBetween(civil(y, time.January, 1, 0, 0, 0), d) + 1
	total := yearLen(y)
	for _, k := range list {
		if k == yd || (k < 0 && total+1+k == yd) {
			return true
		}
	}
	return false
}

func monthDayMatches(list []int, d time.Time) bool {
	dim := daysIn(d.Year(), d.Month())
	for _, k := range list {
		if k == d.Day() || (k < 0 && dim+1+k == d.Day()) {
			return true
		}
	}
	return false
}

// ordinalMatches checks "nth weekday" within the month for MONTHLY rules and
// for YEARLY rules restricted by BYMONTH, and within the year otherwise.
func (p *plan) ordinalMatches(n int, d time.Time) bool {
	var first, last time.Time
	if p.freq == Monthly || len(p.months) > 0 {
		first = civil(d.Year(), d.Month(), 1, 0, 0, 0)
		last = civil(d.Year(), d.Month()+1, 0, 0, 0, 0)
	} else {
		first = civil(d.Year(), time.January, 1, 0, 0, 0)
		last = civil(d.Year(), time.December, 31, 0, 0, 0)
	}
	if n > 0 {
		return daysBetween(first, d)/7+1 == n
	}
	return -(daysBetween(d, last)/7 + 1) == n
}

// selectPositions picks BYSETPOS entries (1-based, negative from the end)
// out of the sorted candidates of one period.
func selectPositions(candidates []time.Time, positions []int) []time.Time {
	n := len(candidates)
	seen := make(map[int]bool)
	var idx []int
	for _, pos := range positions {
		i := pos - 1
		if pos < 0 {
			i = n + pos
		}
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]time.Time, len(idx))
	for j, i := range idx {
		out[j] = candidates[i]
	}
	return out
}

func sortedSet(list []int) []int {
	if len(list) == 0 {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, n := range list {
		if !hasInt(out, n) {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func hasInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

func hasWeekday(list []time.Weekday, w time.Weekday) bool {
	for _, v := range list {
		if v == w {
			return true
		}
	}
	return false
}
