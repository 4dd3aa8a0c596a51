package formatting

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RepeatString repeats a string n times
func RepeatString(s string, count int) string {
	if count <= 0 {
		return ""
	}
	return strings.Repeat(s, count)
}

// Separator returns a line separator of given width
func Separator(width int) string {
	return RepeatString("=", width)
}

// Money renders a dollar amount with two decimals and a sign for losses.
func Money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// Percent renders a fraction such as 0.125 as "12.50%".
func Percent(fraction float64) string {
	return decimal.NewFromFloat(fraction*100).StringFixed(2) + "%"
}

// ParseDate parses a date string in multiple formats
func ParseDate(dateStr string) time.Time {
	formats := []string{
		"2006-01-02", // YYYY-MM-DD (standard)
		"02/01/2006", // DD/MM/YYYY
		"02.01.2006", // DD.MM.YYYY
		"01-02-2006", // MM-DD-YYYY (US format)
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t
		}
	}

	return time.Time{}
}
