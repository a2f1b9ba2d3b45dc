package recur

import (
	"time"
)

const (
	// maxEmptyPeriods stops rules that can never produce another occurrence,
	// such as BYMONTHDAY=31 combined with BYMONTH=2.
	maxEmptyPeriods = 10000
	maxYear         = 9999
)

// Iterator walks the occurrences of a rule in ascending order. The start is
// always the first occurrence and counts towards COUNT, even when it does
// not match the rule.
//
// An Iterator is not safe for concurrent use.
type Iterator struct {
	rule  Rule
	plan  plan
	start time.Time
	loc   *time.Location
	until time.Time

	cursor   time.Time
	pending  []time.Time
	empty    int
	finished bool

	current time.Time
	key     int
	valid   bool
}

// NewIterator validates rule and positions a new iterator on start. The
// location of start decides the wall clock used during expansion;
// sub-second precision is dropped.
func NewIterator(rule *Rule, start time.Time) (*Iterator, error) {
	if rule == nil {
		return nil, invalid("rule", "", "nil")
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	start = start.Truncate(time.Second)
	loc := start.Location()

	it := &Iterator{
		rule:  *rule,
		start: start,
		loc:   loc,
	}
	switch {
	case rule.Until.IsZero():
	case rule.UntilFloating:
		it.until = resolve(wallOf(rule.Until), loc)
	default:
		it.until = rule.Until
	}
	wall := wallOf(start)
	it.plan = newPlan(&it.rule, wall)
	it.Rewind()
	return it, nil
}

// Rule returns a copy of the rule being expanded.
func (it *Iterator) Rule() Rule {
	return it.rule
}

func (it *Iterator) Valid() bool {
	return it.valid
}

// Current returns the occurrence under the iterator. It is the zero time once
// Valid reports false.
func (it *Iterator) Current() time.Time {
	if !it.valid {
		return time.Time{}
	}
	return it.current
}

// Key is the zero-based position of Current among the occurrences visited
// since the last Rewind. FastForward on a rule without COUNT may skip whole
// periods without counting them.
func (it *Iterator) Key() int {
	return it.key
}

// IsInfinite reports whether the rule has neither COUNT nor UNTIL.
func (it *Iterator) IsInfinite() bool {
	return it.rule.Count == 0 && it.rule.Until.IsZero()
}

// Rewind puts the iterator back on the start.
func (it *Iterator) Rewind() {
	it.cursor = it.plan.firstPeriod(wallOf(it.start))
	it.pending = nil
	it.empty = 0
	it.finished = false
	it.current = it.start
	it.key = 0
	it.valid = true
}

// Next moves to the following occurrence, or invalidates the iterator when
// the rule is exhausted.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	if it.rule.Count > 0 && it.key+1 >= it.rule.Count {
		it.stop()
		return
	}
	for {
		t, ok := it.pull()
		if !ok {
			it.stop()
			return
		}
		if !t.After(it.current) {
			continue
		}
		if !it.until.IsZero() && t.After(it.until) {
			it.stop()
			return
		}
		it.current = t
		it.key++
		return
	}
}

// FastForward advances until Current is on or after t.
func (it *Iterator) FastForward(t time.Time) {
	it.FastForwardWithin(t, 0)
}

// FastForwardWithin is FastForward walking at most limit occurrences. It
// reports false when the limit ran out first, leaving the iterator on the
// last occurrence walked. A limit of zero or less walks without a cap.
func (it *Iterator) FastForwardWithin(t time.Time, limit int) bool {
	if !it.valid || !it.current.Before(t) {
		return true
	}
	it.jump(t)
	for n := 0; it.valid && it.current.Before(t); n++ {
		if limit > 0 && n == limit {
			return false
		}
		it.Next()
	}
	return true
}

// jump moves the cursor to the period just before the one holding t without
// expanding the periods in between. Rules with COUNT are walked instead,
// since every skipped occurrence has to be counted.
func (it *Iterator) jump(t time.Time) {
	if it.rule.Count > 0 {
		return
	}
	if n := len(it.pending); n > 0 && !it.pending[n-1].Before(t) {
		return
	}
	target := wallOf(t.In(it.loc))
	steps := it.plan.stepsUntil(it.cursor, target) - 1
	if steps <= 0 {
		return
	}
	it.pending = nil
	it.empty = 0
	it.cursor = it.plan.advance(it.cursor, steps)
}

// Take collects up to n occurrences starting at Current, leaving the
// iterator on the first one not returned.
func (it *Iterator) Take(n int) []time.Time {
	var out []time.Time
	for len(out) < n && it.valid {
		out = append(out, it.current)
		it.Next()
	}
	return out
}

// Between rewinds and returns the occurrences in [from, to]. A positive
// limit caps the result; truncated reports whether the cap was hit.
func (it *Iterator) Between(from, to time.Time, limit int) (out []time.Time, truncated bool) {
	it.Rewind()
	it.FastForward(from)
	for it.valid && !it.current.After(to) {
		if limit > 0 && len(out) == limit {
			return out, true
		}
		out = append(out, it.current)
		it.Next()
	}
	return out, false
}

func (it *Iterator) stop() {
	it.valid = false
	it.current = time.Time{}
	it.pending = nil
}

func (it *Iterator) pull() (time.Time, bool) {
	for len(it.pending) == 0 {
		if it.finished {
			return time.Time{}, false
		}
		it.fill()
	}
	t := it.pending[0]
	it.pending = it.pending[1:]
	return t, true
}

// fill expands the period under the cursor into pending and moves on.
func (it *Iterator) fill() {
	if it.cursor.Year() > maxYear {
		it.finished = true
		return
	}
	if !it.until.IsZero() && resolve(it.plan.periodStart(it.cursor), it.loc).After(it.until) {
		it.finished = true
		return
	}
	walls, steps := it.plan.expand(it.cursor)
	next := it.plan.advance(it.cursor, steps)
	if !next.After(it.cursor) {
		it.finished = true
	}
	it.cursor = next

	for _, w := range walls {
		t := resolve(w, it.loc)
		if it.plan.explicitHours && t.Hour() != w.Hour() && !hasInt(it.plan.hours, t.Hour()) {
			continue
		}
		it.pending = append(it.pending, t)
	}
	if len(it.pending) == 0 {
		it.empty++
		if it.empty >= maxEmptyPeriods {
			it.finished = true
		}
		return
	}
	it.empty = 0
}

// Expand is a convenience wrapper that parses rule and returns up to limit
// occurrences starting at start.
func Expand(rule string, start time.Time, limit int) ([]time.Time, error) {
	r, err := ParseRule(rule)
	if err != nil {
		return nil, err
	}
	it, err := NewIterator(r, start)
	if err != nil {
		return nil, err
	}
	return it.Take(limit), nil
}
