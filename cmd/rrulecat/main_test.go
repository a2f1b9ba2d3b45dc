package main

import (
	"bytes"
	"strings"
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPrintsOccurrences(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, flagConfig{
		rule:  "FREQ=DAILY;INTERVAL=3;UNTIL=20111025T000000Z",
		start: "20111007T000000",
		tz:    "UTC",
		n:     10,
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"2011-10-07T00:00:00Z",
		"2011-10-10T00:00:00Z",
		"2011-10-13T00:00:00Z",
		"2011-10-16T00:00:00Z",
		"2011-10-19T00:00:00Z",
		"2011-10-22T00:00:00Z",
		"2011-10-25T00:00:00Z",
	}, lines)
}

func TestRunAfterAndMore(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, flagConfig{
		rule:  "FREQ=MONTHLY;BYDAY=-1FR",
		start: "20240126T090000",
		tz:    "Europe/Zurich",
		n:     2,
		after: "2024-06-01T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-28T09:00:00+02:00\n2024-07-26T09:00:00+02:00\n...\n", out.String())
}

func TestRunErrors(t *testing.T) {
	tests := []flagConfig{
		{tz: "UTC", n: 1},
		{rule: "FREQ=DAILY", tz: "Nowhere/City", n: 1},
		{rule: "FREQ=DAILY", start: "soon", tz: "UTC", n: 1},
		{rule: "FREQ=FORTNIGHTLY", start: "20240101", tz: "UTC", n: 1},
		{rule: "FREQ=DAILY", start: "20240101", after: "later", tz: "UTC", n: 1},
	}
	for _, f := range tests {
		assert.Error(t, run(&bytes.Buffer{}, f), f.rule)
	}
}
