package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func TestBucket(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want DateBucket
	}{
		{"same moment", now, BucketToday},
		{"earlier today", time.Date(2025, 3, 10, 0, 30, 0, 0, time.UTC), BucketToday},
		{"yesterday", time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC), BucketEarlier},
		{"last month", time.Date(2025, 2, 10, 15, 0, 0, 0, time.UTC), BucketEarlier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Bucket(tt.date, now))
		})
	}

	t.Run("calendar day follows the viewer's zone", func(t *testing.T) {
		// 23:30 UTC on the 9th is already the 10th at UTC+2
		viewer := time.Date(2025, 3, 10, 9, 0, 0, 0, time.FixedZone("EET", 2*3600))
		date := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)
		assert.Equal(t, BucketToday, Bucket(date, viewer))
	})
}

func TestFormatRelativeTime(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want string
	}{
		{"seconds ago", now.Add(-30 * time.Second), "now"},
		{"minutes ago", now.Add(-5 * time.Minute), "5m"},
		{"hours ago", now.Add(-3 * time.Hour), "3h"},
		{"days ago", now.Add(-49 * time.Hour), "2d"},
		{"beyond a week", now.Add(-10 * 24 * time.Hour), "Feb 28"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRelativeTime(tt.date, now))
		})
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Mon, 10 Mar 2025 15:00:00 +0000", FormatDate(now))
}
