// Package render formats email metadata for display. Every timestamp that
// reaches this package must already be zone-corrected (api.ParseTimestamp);
// raw backend date strings are never formatted directly.
package render

import (
	"fmt"
	"time"
)

// DateBucket groups emails by recency for list section headers
type DateBucket string

const (
	BucketToday   DateBucket = "today"
	BucketEarlier DateBucket = "earlier"
)

// Bucket classifies a corrected timestamp relative to now. The comparison
// happens in now's location so "today" means the user's calendar day.
func Bucket(date, now time.Time) DateBucket {
	d := date.In(now.Location())
	y1, m1, d1 := d.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return BucketToday
	}
	return BucketEarlier
}

// FormatRelativeTime renders a compact age for message lists: "now", "5m",
// "3h", "2d", then a calendar date beyond a week.
func FormatRelativeTime(date, now time.Time) string {
	diff := now.Sub(date)

	switch {
	case diff < time.Minute:
		return "now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(diff.Hours()/24))
	default:
		return date.In(now.Location()).Format("Jan 2")
	}
}

// FormatDate renders a full timestamp for the reading pane
func FormatDate(date time.Time) string {
	return date.Format("Mon, 02 Jan 2006 15:04:05 -0700")
}
