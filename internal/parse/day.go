package parse

import (
	"fmt"
	"time"
)

// DayLayout is the calendar date format used in queries.
const DayLayout = "2006-01-02"

// Day returns the inclusive UTC window [00:00:00.000, 23:59:59.999] of the
// given calendar date. An empty date means the UTC day of now.
func Day(date string, now time.Time) (from, to time.Time, err error) {
	var d time.Time
	if date == "" {
		n := now.UTC()
		d = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		d, err = time.ParseInLocation(DayLayout, date, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", date)
		}
	}
	return d, d.Add(24*time.Hour - time.Millisecond), nil
}
