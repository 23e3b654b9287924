// Package normalize turns raw provider values into typed canonical values.
// Every parser returns (value, ok); a failed parse is ok=false, never an error.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/you/go-flight-harvester/internal/mapping"
)

// Parse dispatches on the semantic type. Results are string, float64,
// time.Time or int.
func Parse(t mapping.SemanticType, raw any, c Context) (any, bool) {
	switch t {
	case mapping.Text:
		return Text(raw)
	case mapping.Price:
		return Price(raw)
	case mapping.DateTime:
		return DateTime(raw, c)
	case mapping.Duration:
		return Duration(raw, "")
	case mapping.Stops:
		return Stops(raw)
	}
	return nil, false
}

func Text(raw any) (string, bool) {
	var s string
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return "", false
	}
	s = strings.Join(strings.Fields(s), " ")
	return s, s != ""
}

// Price keeps digits and separators and resolves which separator is the
// decimal point. A leading minus survives so the validator can reject it.
func Price(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	s, ok := Text(raw)
	if !ok {
		return 0, false
	}

	first := strings.IndexFunc(s, isDigit)
	if first < 0 {
		return 0, false
	}
	neg := strings.HasSuffix(strings.TrimSpace(s[:first]), "-")

	var b strings.Builder
scan:
	for _, r := range s[first:] {
		switch {
		case isDigit(r), r == '.', r == ',':
			b.WriteRune(r)
		case r == ' ', r == '\u00a0', strings.ContainsRune("₫$€£¥", r):
		default:
			// "1.200.000 VND / 2 người" stops at the unit
			break scan
		}
	}
	num := strings.TrimRight(b.String(), ".,")
	num = resolveSeparators(num)
	if num == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

func resolveSeparators(s string) string {
	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		// whichever comes last is the decimal point
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			return strings.ReplaceAll(s, ",", "")
		}
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case dots+commas == 0:
		return s
	}
	sep := "."
	if commas > 0 {
		sep = ","
	}
	if dots+commas > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	// a single separator followed by exactly three digits groups thousands
	i := strings.Index(s, sep)
	if len(s)-i-1 == 3 {
		return strings.ReplaceAll(s, sep, "")
	}
	return strings.Replace(s, sep, ".", 1)
}

var (
	fullDateTime = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2})(?::(\d{2}))?`)
	timeOfDay    = regexp.MustCompile(`(?:^|[^\d])(\d{1,2})\s*[:hH.]\s*(\d{2})(?:[^\d]|$)`)
)

// DateTime accepts a full ISO-like timestamp, or a time of day that is
// combined with the search date. Values are wall-clock in c.Location.
func DateTime(raw any, c Context) (time.Time, bool) {
	if t, ok := raw.(time.Time); ok {
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.In(c.location()).Truncate(time.Second), true
	}
	s, ok := Text(raw)
	if !ok {
		return time.Time{}, false
	}
	loc := c.location()

	if m := fullDateTime.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
			return t.In(loc).Truncate(time.Second), true
		}
		y, mo, d := atoi(m[1]), atoi(m[2]), atoi(m[3])
		h, mi, sec := atoi(m[4]), atoi(m[5]), atoi(m[6])
		if h > 23 || mi > 59 || sec > 59 {
			return time.Time{}, false
		}
		t := time.Date(y, time.Month(mo), d, h, mi, sec, 0, loc)
		// time.Date folds "02-30" into March
		if ty, tm, td := t.Date(); ty != y || int(tm) != mo || td != d {
			return time.Time{}, false
		}
		return t, true
	}

	if c.SearchDate.IsZero() {
		return time.Time{}, false
	}
	m := timeOfDay.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	h, mi := atoi(m[1]), atoi(m[2])
	if h > 23 || mi > 59 {
		return time.Time{}, false
	}
	y, mo, d := c.SearchDate.Date()
	return time.Date(y, mo, d, h, mi, 0, 0, loc), true
}

var (
	isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)(?:\.\d+)?S)?)?$`)
	hoursPart   = regexp.MustCompile(`(?i)(\d+)\s*(?:giờ|hours?|hrs?|h|g)`)
	minutesPart = regexp.MustCompile(`(?i)(\d+)\s*(?:phút|minutes?|mins?|m|p)`)
	// "2h05", "2g05": two bare digits after the hour unit are minutes
	compactPart = regexp.MustCompile(`(?i)\d+\s*(?:giờ|h|g)\s*(\d{2})(?:[^\d]|$)`)
)

// Duration converts to whole minutes. unit applies to bare numbers:
// "seconds", or minutes otherwise.
func Duration(raw any, unit string) (int, bool) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	default:
		s, ok := Text(raw)
		if !ok {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			n = f
			break
		}
		return textDuration(s)
	}
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) || n > math.MaxInt32 {
		return 0, false
	}
	if unit == "seconds" {
		return int(n) / 60, true
	}
	return int(n), true
}

func textDuration(s string) (int, bool) {
	if m := isoDuration.FindStringSubmatch(strings.ToUpper(s)); m != nil && m[1]+m[2]+m[3]+m[4] != "" {
		return atoi(m[1])*24*60 + atoi(m[2])*60 + atoi(m[3]) + atoi(m[4])/60, true
	}
	h := hoursPart.FindStringSubmatch(s)
	m := minutesPart.FindStringSubmatch(s)
	if m == nil && h != nil {
		m = compactPart.FindStringSubmatch(s)
	}
	if h == nil && m == nil {
		return 0, false
	}
	total := 0
	if h != nil {
		total += atoi(h[1]) * 60
	}
	if m != nil {
		total += atoi(m[1])
	}
	return total, true
}

var (
	leadingInt    = regexp.MustCompile(`-?\d+`)
	nonstopWords  = []string{"nonstop", "non-stop", "direct", "bay thẳng", "không dừng", "trực tiếp"}
	stopIndicator = []string{"stop", "transit", "layover", "dừng", "quá cảnh", "nối chuyến"}
)

// Stops reads a stop count. A stop word without a number counts as one stop.
func Stops(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) || v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case int:
		return v, v >= 0
	case int64:
		return int(v), v >= 0
	}
	s, ok := Text(raw)
	if !ok {
		return 0, false
	}
	lower := strings.ToLower(s)
	for _, w := range nonstopWords {
		if strings.Contains(lower, w) {
			return 0, true
		}
	}
	if m := leadingInt.FindString(lower); m != "" {
		n := atoi(m)
		return n, n >= 0
	}
	for _, w := range stopIndicator {
		if strings.Contains(lower, w) {
			return 1, true
		}
	}
	return 0, false
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
