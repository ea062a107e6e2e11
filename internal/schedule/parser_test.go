package schedule

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		day, time string
		expr      string
		desc      string
	}{
		{EveryDay, "09:00", "0 9 * * *", "every day 09:00"},
		{"毎日", "9:05", "5 9 * * *", "every day 09:05"},
		{Weekdays, "15:30", "30 15 * * 1-5", "weekdays 15:30"},
		{"平日", "00:00", "0 0 * * 1-5", "weekdays 00:00"},
		{Weekend, "23:59", "59 23 * * 0,6", "weekend 23:59"},
		{"土日", "12:00", "0 12 * * 0,6", "weekend 12:00"},
		{"月水金", "15:30", "30 15 * * 1,3,5", "月水金 15:30"},
		{"Mon,Wed,Fri", "08:15", "15 8 * * 1,3,5", "月水金 08:15"},
		{"Fri Mon", "08:15", "15 8 * * 1,5", "月金 08:15"},
		{"金月金", "10:00", "0 10 * * 1,5", "月金 10:00"},
		{"日土", "10:00", "0 10 * * 0,6", "weekend 10:00"},
		{"月火水木金", "10:00", "0 10 * * 1-5", "weekdays 10:00"},
		{"日月火水木金土", "10:00", "0 10 * * *", "every day 10:00"},
		{" 平日 ", "10:00", "0 10 * * 1-5", "weekdays 10:00"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.day+"@"+tt.time, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.day, tt.time)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, got.Expression)
			assert.Equal(t, tt.desc, got.Description)
		})
	}
}

func TestParseInvalidTime(t *testing.T) {
	t.Parallel()
	for _, day := range []string{EveryDay, Weekdays, "月", "nonsense"} {
		for _, ts := range []string{"25:00", "24:00", "12:60", "9", "9:5", "09:000", "", "ab:cd", " 09:00"} {
			_, err := Parse(day, ts)
			var pe *ParseError
			require.Truef(t, errors.As(err, &pe), "Parse(%q, %q) = %v", day, ts, err)
			assert.Equal(t, InvalidTimeFormat, pe.Kind)
			assert.Contains(t, pe.Error(), fmt.Sprintf("%q", ts))
		}
	}
}

func TestParseUnknownDay(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"月X":        "X",
		"Every Day": "Every",
		"monday":    "monday",
		"月曜":        "曜",
		"mon,Wed":   "mon",
	}
	for sel, token := range tests {
		_, err := Parse(sel, "09:00")
		var pe *ParseError
		require.Truef(t, errors.As(err, &pe), "selector %q", sel)
		assert.Equal(t, UnknownDay, pe.Kind, "selector %q", sel)
		assert.Equal(t, token, pe.Input, "selector %q", sel)
	}
}

func TestParseNoDay(t *testing.T) {
	t.Parallel()
	for _, sel := range []string{"", "  ", ",", " / "} {
		_, err := Parse(sel, "09:00")
		var pe *ParseError
		require.Truef(t, errors.As(err, &pe), "selector %q", sel)
		assert.Equal(t, NoDaySpecified, pe.Kind)
	}
}

func TestParseAllIsAllOrNothing(t *testing.T) {
	t.Parallel()
	got, err := ParseAll(Weekdays, []string{"09:00", "12:30", "15:00"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "30 12 * * 1-5", got[1].Expression)

	got, err = ParseAll(Weekdays, []string{"09:00", "99:00", "15:00"})
	require.Error(t, err)
	assert.Nil(t, got)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "99:00", pe.Input)
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"0 9 * * *":       "every day 09:00",
		"30 15 * * 1-5":   "weekdays 15:30",
		"0 12 * * 0,6":    "weekend 12:00",
		"5 7 * * 2,4":     "火木 07:05",
		"0 9 * * 1,9":     "月9 09:00",
		"0 9 * *":         "0 9 * *",
		"":                "",
		"0 9 * * * extra": "0 9 * * * extra",
	}
	for expr, want := range tests {
		assert.Equal(t, want, Describe(expr), "expr %q", expr)
	}
}

func TestParseDescribeRoundTripKeepsTime(t *testing.T) {
	t.Parallel()
	selectors := []string{EveryDay, Weekdays, Weekend, "月", "火木", "Sat,Sun,Wed"}
	for _, sel := range selectors {
		for h := 0; h < 24; h += 5 {
			for _, m := range []int{0, 7, 30, 59} {
				ts := fmt.Sprintf("%02d:%02d", h, m)
				p, err := Parse(sel, ts)
				require.NoError(t, err)
				assert.Contains(t, Describe(p.Expression), ts)
			}
		}
	}
}
