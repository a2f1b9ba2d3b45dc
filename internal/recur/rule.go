// Package recur parses iCalendar recurrence rules (RFC 5545 RRULE) and
// expands them into concrete occurrences.
//
// Expansion happens on wall-clock time in the zone of the start instant and
// is converted to absolute time at the end, so repeating "every day at
// 02:30" stays at 02:30 across daylight-saving changes. A wall time that does
// not exist because of a spring-forward gap is pushed forward by the size of
// the gap (02:30 becomes 03:30) for that occurrence only.
package recur

import (
	"strconv"
	"strings"
	"time"
)

// Frequency is the FREQ part of a rule.
type Frequency int

const (
	Secondly Frequency = iota + 1
	Minutely
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

var frequencyNames = map[Frequency]string{
	Secondly: "SECONDLY",
	Minutely: "MINUTELY",
	Hourly:   "HOURLY",
	Daily:    "DAILY",
	Weekly:   "WEEKLY",
	Monthly:  "MONTHLY",
	Yearly:   "YEARLY",
}

func (f Frequency) String() string {
	if s, ok := frequencyNames[f]; ok {
		return s
	}
	return "Frequency(" + strconv.Itoa(int(f)) + ")"
}

// ParseFrequency accepts the RFC 5545 names, case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for f, name := range frequencyNames {
		if name == up {
			return f, nil
		}
	}
	return 0, invalid("FREQ", s, "unsupported frequency")
}

var weekdayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func parseWeekday(s string) (time.Weekday, bool) {
	up := strings.ToUpper(s)
	for i, code := range weekdayCodes {
		if code == up {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// WeekdayNum is one BYDAY entry. N is the optional ordinal: 2 for "2MO"
// (second Monday), -1 for "-1FR" (last Friday), 0 for every matching day.
type WeekdayNum struct {
	Weekday time.Weekday
	N       int
}

func (w WeekdayNum) String() string {
	code := weekdayCodes[w.Weekday]
	if w.N == 0 {
		return code
	}
	return strconv.Itoa(w.N) + code
}

// Rule is a parsed RRULE. The zero value is not usable; build rules with
// ParseRule or fill Freq and Interval explicitly.
type Rule struct {
	Freq     Frequency
	Interval int
	Count    int

	// Until is inclusive. When UntilFloating is set the value carries only a
	// wall clock (stored in UTC) and is read in the start's zone by
	// NewIterator.
	Until         time.Time
	UntilFloating bool

	BySecond   []int
	ByMinute   []int
	ByHour     []int
	ByDay      []WeekdayNum
	ByMonthDay []int
	ByYearDay  []int
	ByWeekNo   []int
	ByMonth    []int
	BySetPos   []int

	// WeekStart is WKST. ParseRule sets time.Monday when the part is absent.
	WeekStart time.Weekday
}

type listBound struct {
	lo, hi int
	signed bool
}

var listBounds = map[string]listBound{
	"BYSECOND":   {0, 60, false},
	"BYMINUTE":   {0, 59, false},
	"BYHOUR":     {0, 23, false},
	"BYMONTHDAY": {1, 31, true},
	"BYYEARDAY":  {1, 366, true},
	"BYWEEKNO":   {1, 53, true},
	"BYMONTH":    {1, 12, false},
	"BYSETPOS":   {1, 366, true},
}

var listOrder = []string{
	"BYSECOND", "BYMINUTE", "BYHOUR", "BYMONTHDAY", "BYYEARDAY", "BYWEEKNO", "BYMONTH", "BYSETPOS",
}

// ParseRule parses an RRULE value such as "FREQ=WEEKLY;BYDAY=MO,WE".
// A leading "RRULE:" is accepted. Every part is validated; the first
// problem is returned as a *RuleError.
func ParseRule(s string) (*Rule, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 6 && strings.EqualFold(s[:6], "RRULE:") {
		s = s[6:]
	}
	if s == "" {
		return nil, invalid("rule", "", "empty")
	}

	r := &Rule{Interval: 1, WeekStart: time.Monday}
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ";") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, invalid("part", part, "expected KEY=VALUE")
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if seen[key] {
			return nil, invalid(key, value, "part given more than once")
		}
		seen[key] = true
		if err := r.setPart(key, value); err != nil {
			return nil, err
		}
	}
	if !seen["FREQ"] {
		return nil, invalid("FREQ", "", "missing")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rule) setPart(key, value string) error {
	switch key {
	case "FREQ":
		f, err := ParseFrequency(value)
		if err != nil {
			return err
		}
		r.Freq = f
	case "INTERVAL":
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalid(key, value, "not an integer")
		}
		if n < 1 {
			return invalid(key, value, "must be a positive integer")
		}
		r.Interval = n
	case "COUNT":
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalid(key, value, "not an integer")
		}
		if n < 1 {
			return invalid(key, value, "must be a positive integer")
		}
		r.Count = n
	case "UNTIL":
		t, floating, err := parseUntil(value)
		if err != nil {
			return err
		}
		r.Until, r.UntilFloating = t, floating
	case "WKST":
		wd, ok := parseWeekday(value)
		if !ok {
			return invalid(key, value, "not a weekday")
		}
		r.WeekStart = wd
	case "BYDAY":
		days, err := parseByDay(value)
		if err != nil {
			return err
		}
		r.ByDay = days
	case "BYSECOND", "BYMINUTE", "BYHOUR", "BYMONTHDAY", "BYYEARDAY", "BYWEEKNO", "BYMONTH", "BYSETPOS":
		list, err := parseIntList(key, value)
		if err != nil {
			return err
		}
		*r.intList(key) = list
	default:
		return invalid("part", key, "unsupported rule part")
	}
	return nil
}

func (r *Rule) intList(key string) *[]int {
	switch key {
	case "BYSECOND":
		return &r.BySecond
	case "BYMINUTE":
		return &r.ByMinute
	case "BYHOUR":
		return &r.ByHour
	case "BYMONTHDAY":
		return &r.ByMonthDay
	case "BYYEARDAY":
		return &r.ByYearDay
	case "BYWEEKNO":
		return &r.ByWeekNo
	case "BYMONTH":
		return &r.ByMonth
	default:
		return &r.BySetPos
	}
}

func parseIntList(key, value string) ([]int, error) {
	if value == "" {
		return nil, invalid(key, value, "empty list")
	}
	fields := strings.Split(value, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, invalid(key, f, "not an integer")
		}
		out = append(out, n)
	}
	return out, nil
}

func parseByDay(value string) ([]WeekdayNum, error) {
	if value == "" {
		return nil, invalid("BYDAY", value, "empty list")
	}
	var out []WeekdayNum
	for _, f := range strings.Split(value, ",") {
		f = strings.TrimSpace(f)
		if len(f) < 2 {
			return nil, invalid("BYDAY", f, "malformed weekday")
		}
		wd, ok := parseWeekday(f[len(f)-2:])
		if !ok {
			return nil, invalid("BYDAY", f, "malformed weekday")
		}
		w := WeekdayNum{Weekday: wd}
		if prefix := f[:len(f)-2]; prefix != "" {
			n, err := strconv.Atoi(prefix)
			if err != nil {
				return nil, invalid("BYDAY", f, "malformed offset")
			}
			if n == 0 || n > 53 || n < -53 {
				return nil, invalid("BYDAY", f, "offset must be between 1 and 53 or -1 and -53")
			}
			w.N = n
		}
		out = append(out, w)
	}
	return out, nil
}

func parseUntil(value string) (time.Time, bool, error) {
	layouts := []struct {
		layout   string
		floating bool
	}{
		{"20060102T150405Z", false},
		{"20060102T150405", true},
		{"20060102", true},
	}
	for _, l := range layouts {
		if t, err := time.Parse(l.layout, value); err == nil {
			return t, l.floating, nil
		}
	}
	return time.Time{}, false, invalid("UNTIL", value, "not a DATE or DATE-TIME")
}

// Validate checks a rule built in code the same way ParseRule checks text.
func (r *Rule) Validate() error {
	if _, ok := frequencyNames[r.Freq]; !ok {
		return invalid("FREQ", r.Freq.String(), "unsupported frequency")
	}
	if r.Interval < 1 {
		return invalid("INTERVAL", strconv.Itoa(r.Interval), "must be a positive integer")
	}
	if r.Count < 0 {
		return invalid("COUNT", strconv.Itoa(r.Count), "must be a positive integer")
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return invalid("COUNT", strconv.Itoa(r.Count), "COUNT and UNTIL are mutually exclusive")
	}
	if r.WeekStart < time.Sunday || r.WeekStart > time.Saturday {
		return invalid("WKST", strconv.Itoa(int(r.WeekStart)), "not a weekday")
	}
	for _, key := range listOrder {
		b := listBounds[key]
		for _, n := range *r.intList(key) {
			if inBound(n, b) {
				continue
			}
			reason := "must be between " + strconv.Itoa(b.lo) + " and " + strconv.Itoa(b.hi)
			if b.signed {
				reason += " or " + strconv.Itoa(-b.lo) + " and " + strconv.Itoa(-b.hi)
			}
			return invalid(key, strconv.Itoa(n), reason)
		}
	}
	for _, d := range r.ByDay {
		if d.Weekday < time.Sunday || d.Weekday > time.Saturday {
			return invalid("BYDAY", d.String(), "not a weekday")
		}
		if d.N > 53 || d.N < -53 {
			return invalid("BYDAY", d.String(), "offset must be between 1 and 53 or -1 and -53")
		}
	}
	return nil
}

func inBound(n int, b listBound) bool {
	if n >= b.lo && n <= b.hi {
		return true
	}
	return b.signed && n <= -b.lo && n >= -b.hi
}

// String renders the rule in RFC 5545 form with parts in a fixed order.
func (r *Rule) String() string {
	parts := []string{"FREQ=" + r.Freq.String()}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if !r.Until.IsZero() {
		if r.UntilFloating {
			parts = append(parts, "UNTIL="+r.Until.Format("20060102T150405"))
		} else {
			parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
		}
	}
	for _, key := range listOrder[:3] {
		parts = appendList(parts, key, *r.intList(key))
	}
	if len(r.ByDay) > 0 {
		days := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			days[i] = d.String()
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	for _, key := range listOrder[3:] {
		parts = appendList(parts, key, *r.intList(key))
	}
	if r.WeekStart != time.Monday {
		parts = append(parts, "WKST="+weekdayCodes[r.WeekStart])
	}
	return strings.Join(parts, ";")
}

func appendList(parts []string, key string, list []int) []string {
	if len(list) == 0 {
		return parts
	}
	vals := make([]string, len(list))
	for i, n := range list {
		vals[i] = strconv.Itoa(n)
	}
	return append(parts, key+"="+strings.Join(vals, ","))
}
