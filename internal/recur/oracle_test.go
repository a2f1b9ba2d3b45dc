package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rrule "github.com/teambition/rrule-go"
)

// oracle expands rule with rrule-go. The start has to match the rule,
// since rrule-go only emits DTSTART when it satisfies the rule.
func oracle(t *testing.T, rule string, start time.Time) []time.Time {
	t.Helper()
	opt, err := rrule.StrToROptionInLocation(rule, start.Location())
	require.NoError(t, err)
	opt.Dtstart = start
	r, err := rrule.NewRRule(*opt)
	require.NoError(t, err)
	return r.All()
}

func TestMatchesRRuleGo(t *testing.T) {
	cases := []struct {
		rule  string
		start time.Time
	}{
		{"FREQ=DAILY;INTERVAL=3;COUNT=10", time.Date(2011, 10, 7, 9, 0, 0, 0, time.UTC)},
		{"FREQ=WEEKLY;BYDAY=MO,WE;COUNT=10", time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)},
		{"FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH;WKST=SU;COUNT=12", time.Date(1997, 9, 2, 9, 0, 0, 0, time.UTC)},
		{"FREQ=MONTHLY;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=-1;COUNT=12", time.Date(2011, 1, 31, 0, 0, 0, 0, time.UTC)},
		{"FREQ=MONTHLY;BYMONTHDAY=-1;COUNT=14", time.Date(2011, 1, 31, 12, 0, 0, 0, time.UTC)},
		{"FREQ=MONTHLY;BYDAY=FR;BYMONTHDAY=13;COUNT=5", time.Date(1998, 2, 13, 9, 0, 0, 0, time.UTC)},
		{"FREQ=YEARLY;BYYEARDAY=100,200;COUNT=10", time.Date(2011, 4, 10, 0, 0, 0, 0, time.UTC)},
		{"FREQ=YEARLY;BYWEEKNO=1;BYDAY=MO;COUNT=8", time.Date(2011, 1, 3, 0, 0, 0, 0, time.UTC)},
		{"FREQ=YEARLY;BYWEEKNO=-20;BYDAY=TU,FR;COUNT=10", time.Date(2011, 8, 16, 0, 0, 0, 0, time.UTC)},
		{"FREQ=YEARLY;BYMONTH=11;BYDAY=TU;BYMONTHDAY=2,3,4,5,6,7,8;COUNT=6", time.Date(1996, 11, 5, 9, 0, 0, 0, time.UTC)},
		{"FREQ=YEARLY;BYDAY=20MO;COUNT=4", time.Date(1997, 5, 19, 9, 0, 0, 0, time.UTC)},
		{"FREQ=HOURLY;INTERVAL=5;COUNT=20", time.Date(2011, 10, 7, 1, 0, 0, 0, time.UTC)},
		{"FREQ=MINUTELY;INTERVAL=15;BYHOUR=9,10;COUNT=20", time.Date(2011, 10, 7, 9, 0, 0, 0, time.UTC)},
		{"FREQ=DAILY;BYHOUR=9,17;BYMINUTE=0,30;COUNT=12", time.Date(2020, 2, 27, 9, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		t.Run(c.rule, func(t *testing.T) {
			want := oracle(t, c.rule, c.start)

			r, err := ParseRule(c.rule)
			require.NoError(t, err)
			it, err := NewIterator(r, c.start)
			require.NoError(t, err)
			got := it.Take(len(want) + 1)

			assert.Equal(t, formatAll(want), formatAll(got))
		})
	}
}
