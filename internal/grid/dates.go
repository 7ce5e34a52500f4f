package grid

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	fullDatePattern    = regexp.MustCompile(`^(\d{4})\s*[-./년]\s*(\d{1,2})\s*[-./월]\s*(\d{1,2})`)
	slashDatePattern   = regexp.MustCompile(`^(\d{1,2})\s*[/.]\s*(\d{1,2})(?:\s*\(.*\))?\s*$`)
	koreanDatePattern  = regexp.MustCompile(`^(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	tabYearPattern     = regexp.MustCompile(`(\d{4})\s*(?:년|[.\-/]\s*\d{1,2})`)
	clockPattern       = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	koreanClockPattern = regexp.MustCompile(`^(\d{1,2})\s*시(?:\s*(\d{1,2})\s*분|\s*(반))?$`)
)

// DateLayout is the canonical calendar date format used across the module.
const DateLayout = "2006-01-02"

// ParseHeaderDate reads a header cell date ("2025-02-03", "2/3(월)", "2월 3일").
// Yearless dates take the supplied year.
func ParseHeaderDate(text string, year int) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	if m := fullDatePattern.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return civilDate(y, mo, d)
	}

	if year <= 0 {
		return time.Time{}, false
	}

	if m := slashDatePattern.FindStringSubmatch(text); m != nil {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		return civilDate(year, mo, d)
	}
	if m := koreanDatePattern.FindStringSubmatch(text); m != nil {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		return civilDate(year, mo, d)
	}
	return time.Time{}, false
}

func civilDate(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// TabYear extracts a year from tab names like "2025년 2월" or "2025.02".
func TabYear(tab string) (int, bool) {
	m := tabYearPattern.FindStringSubmatch(tab)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil || y < 2000 || y > 2100 {
		return 0, false
	}
	return y, true
}

// ParseRowTime reads the time-of-day label in a data row and returns the
// canonical 24-hour "HH:MM" form.
func ParseRowTime(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	meridiem := ""
	upper := strings.ToUpper(text)
	for _, p := range []struct{ token, tag string }{
		{"오전", "am"}, {"오후", "pm"}, {"AM", "am"}, {"PM", "pm"}, {"A.M.", "am"}, {"P.M.", "pm"},
	} {
		if strings.HasPrefix(upper, p.token) {
			meridiem = p.tag
			text = strings.TrimSpace(text[len(p.token):])
			break
		}
		if strings.HasSuffix(upper, p.token) {
			meridiem = p.tag
			text = strings.TrimSpace(text[:len(text)-len(p.token)])
			break
		}
	}

	var hour, minute int
	switch {
	case clockPattern.MatchString(text):
		m := clockPattern.FindStringSubmatch(text)
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
	case koreanClockPattern.MatchString(text):
		m := koreanClockPattern.FindStringSubmatch(text)
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		} else if m[3] != "" {
			minute = 30
		}
	default:
		return "", false
	}

	hour, ok := To24Hour(hour, meridiem)
	if !ok || minute > 59 {
		return "", false
	}
	return FormatClock(hour, minute), true
}

// To24Hour converts a 12-hour clock hour. "am" 12 becomes 0, "pm" hours other
// than 12 gain 12. An empty meridiem passes the hour through.
func To24Hour(hour int, meridiem string) (int, bool) {
	switch meridiem {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			return 0, true
		}
		return hour, true
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour != 12 {
			return hour + 12, true
		}
		return hour, true
	default:
		if hour < 0 || hour > 23 {
			return 0, false
		}
		return hour, true
	}
}

// FormatClock renders zero-padded "HH:MM".
func FormatClock(hour, minute int) string {
	return pad2(hour) + ":" + pad2(minute)
}

func pad2(v int) string {
	if v < 10 {
		return "0" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}
