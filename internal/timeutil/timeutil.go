// Package timeutil pins the application clock to Asia/Shanghai.
//
// Crawl batches, "today" queries and date-keyed storage folders all use
// this zone regardless of where the process runs.
package timeutil

import "time"

var shanghai = mustLoad("Asia/Shanghai")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fall back to a fixed offset; CST has no DST.
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// Location returns the application time zone.
func Location() *time.Location { return shanghai }

// Now returns the current time in the application zone.
func Now() time.Time { return time.Now().In(shanghai) }

// DateKey formats t as YYYY-MM-DD in the application zone.
func DateKey(t time.Time) string { return t.In(shanghai).Format("2006-01-02") }

// HourMinute formats t as HH:MM for report display.
func HourMinute(t time.Time) string { return t.In(shanghai).Format("15:04") }
