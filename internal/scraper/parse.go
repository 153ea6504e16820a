package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	ratioRe   = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	percentRe = regexp.MustCompile(`(\d+)\s*%`)
	numberRe  = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// ParseRatio extracts an "open / total" pair from text like "8 / 10".
func ParseRatio(text string) (open, total int, ok bool) {
	m := ratioRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	open, _ = strconv.Atoi(m[1])
	total, _ = strconv.Atoi(m[2])
	return open, total, true
}

// ParsePercent extracts an integer percentage from text like "85%".
// Values above 100 are clamped.
func ParsePercent(text string) (int, bool) {
	m := percentRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	p, _ := strconv.Atoi(m[1])
	if p > 100 {
		p = 100
	}
	return p, true
}

// ParseInt extracts the first integer in text, tolerating thousands
// separators ("1,200 acres" -> 1200).
func ParseInt(text string) (int, bool) {
	f, ok := ParseNumber(text)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// ParseNumber extracts the first number in text.
func ParseNumber(text string) (float64, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IsOpenText derives the open/closed flag from status text: true iff the
// text contains "open" and does not contain "closed", case-insensitive.
func IsOpenText(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "open") && !strings.Contains(t, "closed")
}
