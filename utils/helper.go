package utils

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// FC daily query windows use a compact day format, consumption statistics a
// month-year format.
const (
	FcDayFormat       = "20060102"
	FcMonthYearFormat = "01-2006"
	FcDateFormat      = "2006-01-02"
)

func FormatFcDay(t time.Time) string {
	return t.Format(FcDayFormat)
}

func FormatFcMonthYear(t time.Time) string {
	return t.Format(FcMonthYearFormat)
}

// ParseFcTime accepts the timestamp shapes the FC feed is known to emit.
// Zero time and false when none match.
func ParseFcTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		FcDateFormat,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func DecimalFromString(value string) decimal.Decimal {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(value); err == nil {
		return d
	}
	return decimal.Zero
}

// IsActiveStatus interprets the FC feed's status field. The feed spells it a
// few ways depending on endpoint vintage.
func IsActiveStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "ACTIVE", "ACTIVO", "A":
		return true
	default:
		return false
	}
}
