package report

import (
	"regexp"
	"time"
)

const (
	// DateLayout is the only accepted report date format.
	DateLayout = "2006-01-02"
	// DisplayLayout renders dates in subjects, e.g. "Jan 06, 2026".
	DisplayLayout = "Jan 02, 2006"
)

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// ResolveDate picks the report date. An explicit value must be a valid
// YYYY-MM-DD date and is returned as is. Without one the date comes from the
// source name, falling back to now.
func ResolveDate(explicit, source string, now time.Time) (string, error) {
	if explicit != "" {
		if _, err := time.Parse(DateLayout, explicit); err != nil {
			return "", &Error{
				Code:    CodeInvalidDate,
				Message: "Invalid date format: " + explicit,
				Err:     err,
			}
		}
		return explicit, nil
	}

	return DateFromName(DateSource(source), now), nil
}

// DateFromName returns the first YYYY-MM-DD looking substring of name, or the
// date of now. The match is not checked for being a real calendar date.
func DateFromName(name string, now time.Time) string {
	if match := datePattern.FindString(name); match != "" {
		return match
	}
	return now.Format(DateLayout)
}

// FormatDisplayDate turns "2026-01-06" into "Jan 06, 2026". Anything that does
// not parse is returned unchanged.
func FormatDisplayDate(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(DisplayLayout)
}
