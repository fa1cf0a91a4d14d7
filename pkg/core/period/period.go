// Package period recognizes the date headers used as column periods in
// financial spreadsheets ("Mar-24", "2024-03", Excel serials, ...).
package period

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	reMonthYear = regexp.MustCompile(`^([a-z]{3,9})\.?[\s\-/']*(\d{2}|\d{4})$`)
	reYearMonth = regexp.MustCompile(`^(\d{4})[\-/.](\d{1,2})(?:[\-/.](\d{1,2}))?$`)
	reMonthNum  = regexp.MustCompile(`^(\d{1,2})[\-/.](\d{4})$`)
	reDayFirst  = regexp.MustCompile(`^(\d{1,2})[/.](\d{1,2})[/.](\d{4})$`)
	reQuarter   = regexp.MustCompile(`^(q[1-4]|h[12])\s*['\-]?\s*(fy)?\s*(\d{2}|\d{4})$|^(fy|cy)\s*['\-]?\s*(\d{2}|\d{4})$|^(\d{4})\s*(q[1-4]|h[12])$`)
)

// serial range covering 1954..2119 so plain amounts are not read as dates.
const (
	minSerial = 20000
	maxSerial = 80000
)

// ParseText resolves a header text to the first day of its month.
func ParseText(s string) (time.Time, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return time.Time{}, false
	}

	if m := reMonthYear.FindStringSubmatch(t); m != nil {
		month, ok := months[m[1]]
		if !ok {
			return time.Time{}, false
		}
		return monthStart(expandYear(m[2]), month), true
	}
	if m := reYearMonth.FindStringSubmatch(t); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return time.Time{}, false
		}
		return monthStart(year, time.Month(month)), true
	}
	if m := reMonthNum.FindStringSubmatch(t); m != nil {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return time.Time{}, false
		}
		return monthStart(year, time.Month(month)), true
	}
	if m := reDayFirst.FindStringSubmatch(t); m != nil {
		// dd/mm/yyyy; only accepted when the day is unambiguous or equal to 1.
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		switch {
		case a == 1 && b >= 1 && b <= 12:
			return monthStart(year, time.Month(b)), true
		case b == 1 && a >= 1 && a <= 12:
			return monthStart(year, time.Month(a)), true
		case a > 12 && b >= 1 && b <= 12:
			return monthStart(year, time.Month(b)), true
		case b > 12 && a >= 1 && a <= 12:
			return monthStart(year, time.Month(a)), true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// ParseSerial converts an Excel date serial to the first day of its month.
func ParseSerial(v float64) (time.Time, bool) {
	if v < minSerial || v > maxSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(v, false)
	if err != nil {
		return time.Time{}, false
	}
	return monthStart(t.Year(), t.Month()), true
}

// IsHeaderSerial reports whether v reads as a month header serial: a whole
// day inside the serial range landing on the first or last day of a month.
func IsHeaderSerial(v float64) bool {
	if v != math.Trunc(v) || v < minSerial || v > maxSerial {
		return false
	}
	t, err := excelize.ExcelDateToTime(v, false)
	if err != nil {
		return false
	}
	return t.Day() == 1 || t.AddDate(0, 0, 1).Day() == 1
}

// IsDateLike reports whether s reads as a period header of any granularity,
// including quarters and fiscal years that ParseText does not resolve.
func IsDateLike(s string) bool {
	if _, ok := ParseText(s); ok {
		return true
	}
	t := strings.ToLower(strings.TrimSpace(s))
	if reQuarter.MatchString(t) {
		return true
	}
	_, ok := months[strings.TrimSuffix(t, ".")]
	return ok
}

// IsMonthName reports whether s is a bare month header ("Jan", "September").
func IsMonthName(s string) bool {
	_, ok := months[strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")]
	return ok
}

func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}

func monthStart(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}
