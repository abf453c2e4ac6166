package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
)

func TestEffectiveStatus(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	tests := []struct {
		name   string
		stored models.Status
		now    time.Time
		want   models.Status
	}{
		{"before window", models.StatusPending, start.Add(-time.Minute), models.StatusPending},
		{"at start", models.StatusPending, start, models.StatusActive},
		{"inside window", models.StatusActive, start.Add(time.Hour), models.StatusActive},
		{"just before end", models.StatusActive, end.Add(-time.Second), models.StatusActive},
		{"at end", models.StatusActive, end, models.StatusEnded},
		{"after end", models.StatusActive, end.Add(time.Hour), models.StatusEnded},
		// stored status never anticipates the clock
		{"stored active before window", models.StatusActive, start.Add(-time.Hour), models.StatusPending},
		{"stored ended inside window", models.StatusEnded, start.Add(time.Hour), models.StatusActive},
		// closed is sticky regardless of time
		{"closed before window", models.StatusClosed, start.Add(-time.Hour), models.StatusClosed},
		{"closed inside window", models.StatusClosed, start.Add(time.Hour), models.StatusClosed},
		{"closed after window", models.StatusClosed, end.Add(time.Hour), models.StatusClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveStatus(tt.stored, start, end, tt.now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinimumBid(t *testing.T) {
	assert.Equal(t, 100.0, MinimumBid(0, 100))
	assert.Equal(t, 101.0, MinimumBid(100, 100))
	assert.Equal(t, 251.0, MinimumBid(250, 100))
}

func TestMeetsBuyNow(t *testing.T) {
	assert.False(t, MeetsBuyNow(500, 0), "no buy-now price configured")
	assert.False(t, MeetsBuyNow(499, 500))
	assert.True(t, MeetsBuyNow(500, 500))
	assert.True(t, MeetsBuyNow(750, 500))
}

func TestInWindow(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	assert.False(t, InWindow(start, end, start.Add(-time.Nanosecond)))
	assert.True(t, InWindow(start, end, start))
	assert.True(t, InWindow(start, end, end.Add(-time.Nanosecond)))
	assert.False(t, InWindow(start, end, end))
}
