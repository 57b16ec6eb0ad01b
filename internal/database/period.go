package database

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

const dateLayout = "2006-01-02"

// GetToday returns today's date as YYYY-MM-DD.
func GetToday() string {
	return time.Now().Format(dateLayout)
}

// NormalizeScanDate turns a scanner-provided date in any common layout into
// YYYY-MM-DD. An empty value means today.
func NormalizeScanDate(raw string) (string, error) {
	if raw == "" {
		return GetToday(), nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return "", fmt.Errorf("parsing scan date %q: %w", raw, err)
	}
	return t.Format(dateLayout), nil
}

// FormatDateDisplay formats a YYYY-MM-DD date for human-readable display,
// e.g. "Feb 06, 2026". Unparseable input is returned unchanged.
func FormatDateDisplay(date string) string {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("Jan 02, 2006")
}
