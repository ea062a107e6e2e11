// Package schedule converts user-facing day selectors and HH:MM times into
// 5-field cron expressions and renders them back into readable descriptions.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Named day selectors.
const (
	EveryDay = "every day"
	Weekdays = "weekdays"
	Weekend  = "weekend"
)

const (
	setEveryDay = "*"
	setWeekdays = "1-5"
	setWeekend  = "0,6"
)

type day struct {
	num   int
	char  string // single-character name, e.g. 月
	short string // English abbreviation, e.g. Mon
}

// dayTable is ordered by cron day-of-week number (0=Sunday).
var dayTable = [7]day{
	{0, "日", "Sun"},
	{1, "月", "Mon"},
	{2, "火", "Tue"},
	{3, "水", "Wed"},
	{4, "木", "Thu"},
	{5, "金", "Fri"},
	{6, "土", "Sat"},
}

var namedSets = map[string]string{
	EveryDay: setEveryDay,
	"毎日":     setEveryDay,
	Weekdays: setWeekdays,
	"平日":     setWeekdays,
	Weekend:  setWeekend,
	"土日":     setWeekend,
	"休日":     setWeekend,
}

var reTime = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	InvalidTimeFormat ErrorKind = iota + 1
	UnknownDay
	NoDaySpecified
)

// ParseError reports malformed schedule input. Its message is meant to be shown to the user as-is.
type ParseError struct {
	Kind  ErrorKind
	Input string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case InvalidTimeFormat:
		return fmt.Sprintf("invalid time %q: use HH:MM between 00:00 and 23:59", e.Input)
	case UnknownDay:
		return fmt.Sprintf("unknown day %q: use %q, %q, %q or day names such as Mon,Wed,Fri or 月水金",
			e.Input, EveryDay, Weekdays, Weekend)
	case NoDaySpecified:
		return "no day specified"
	default:
		return "invalid schedule"
	}
}

// Parsed is one canonical trigger expression with its description.
type Parsed struct {
	Expression  string
	Description string
}

// Parse converts a day selector and one HH:MM time into a trigger expression.
func Parse(daySelector, timeString string) (Parsed, error) {
	hour, minute, err := parseTime(timeString)
	if err != nil {
		return Parsed{}, err
	}
	set, err := parseDays(daySelector)
	if err != nil {
		return Parsed{}, err
	}
	expr := fmt.Sprintf("%d %d * * %s", minute, hour, set)
	return Parsed{Expression: expr, Description: Describe(expr)}, nil
}

// ParseAll parses several times sharing one day selector. It stops at the first
// invalid time and returns nothing in that case.
func ParseAll(daySelector string, times []string) ([]Parsed, error) {
	out := make([]Parsed, 0, len(times))
	for _, ts := range times {
		p, err := Parse(daySelector, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseTime(s string) (hour, minute int, err error) {
	m := reTime.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &ParseError{Kind: InvalidTimeFormat, Input: s}
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, &ParseError{Kind: InvalidTimeFormat, Input: s}
	}
	return hour, minute, nil
}

func parseDays(selector string) (string, error) {
	normalized := strings.TrimSpace(selector)
	if set, ok := namedSets[normalized]; ok {
		return set, nil
	}

	var seen [7]bool
	count := 0
	mark := func(d day) {
		if !seen[d.num] {
			seen[d.num] = true
			count++
		}
	}

	tokens := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ',' || r == '/' || unicode.IsSpace(r)
	})
	for _, tok := range tokens {
		if d, ok := lookupShort(tok); ok {
			mark(d)
			continue
		}
		if isASCIIWord(tok) {
			return "", &ParseError{Kind: UnknownDay, Input: tok}
		}
		for _, r := range tok {
			d, ok := lookupChar(string(r))
			if !ok {
				return "", &ParseError{Kind: UnknownDay, Input: string(r)}
			}
			mark(d)
		}
	}
	if count == 0 {
		return "", &ParseError{Kind: NoDaySpecified, Input: selector}
	}
	return renderSet(seen), nil
}

func renderSet(seen [7]bool) string {
	nums := make([]string, 0, 7)
	for _, d := range dayTable {
		if seen[d.num] {
			nums = append(nums, strconv.Itoa(d.num))
		}
	}
	switch joined := strings.Join(nums, ","); joined {
	case "0,1,2,3,4,5,6":
		return setEveryDay
	case "1,2,3,4,5":
		return setWeekdays
	default:
		return joined
	}
}

// Describe renders a trigger expression as text, e.g. "weekdays 09:00" or
// "月水金 15:30" for other day sets. Input that is not a 5-field expression is
// returned unchanged.
func Describe(expr string) string {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return expr
	}
	minute, hour, dow := parts[0], parts[1], parts[4]
	timeStr := pad2(hour) + ":" + pad2(minute)

	switch dow {
	case setEveryDay:
		return EveryDay + " " + timeStr
	case setWeekdays:
		return Weekdays + " " + timeStr
	case setWeekend:
		return Weekend + " " + timeStr
	}

	names := strings.Split(dow, ",")
	for i, n := range names {
		if v, err := strconv.Atoi(n); err == nil && v >= 0 && v < len(dayTable) {
			names[i] = dayTable[v].char
		}
	}
	return strings.Join(names, "") + " " + timeStr
}

func lookupShort(tok string) (day, bool) {
	for _, d := range dayTable {
		if d.short == tok {
			return d, true
		}
	}
	return day{}, false
}

func lookupChar(c string) (day, bool) {
	for _, d := range dayTable {
		if d.char == c {
			return d, true
		}
	}
	return day{}, false
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
