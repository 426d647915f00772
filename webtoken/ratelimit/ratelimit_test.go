package ratelimit

import (
	"testing"
	"time"
)

func TestCheck(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 15 * time.Minute

	past := now.Add(-16 * time.Minute)
	boundary := now.Add(-cooldown)
	recent := now.Add(-5 * time.Minute)

	tests := []struct {
		name        string
		lastTokenAt *time.Time
		wantLimited bool
		wantNext    *time.Time
	}{
		{
			name:        "never issued",
			lastTokenAt: nil,
			wantLimited: false,
		},
		{
			name:        "cooldown elapsed",
			lastTokenAt: &past,
			wantLimited: false,
		},
		{
			name:        "exactly at boundary",
			lastTokenAt: &boundary,
			wantLimited: false,
		},
		{
			name:        "inside cooldown",
			lastTokenAt: &recent,
			wantLimited: true,
			wantNext:    timePtr(recent.Add(cooldown)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.lastTokenAt, cooldown, now)
			if got.Limited != tt.wantLimited {
				t.Errorf("Check() limited = %v, want %v", got.Limited, tt.wantLimited)
			}
			if tt.wantNext != nil {
				if got.NextAvailableAt == nil || !got.NextAvailableAt.Equal(*tt.wantNext) {
					t.Errorf("Check() nextAvailableAt = %v, want %v", got.NextAvailableAt, tt.wantNext)
				}
			}
		})
	}
}

func TestNextAvailableAt(t *testing.T) {
	if got := NextAvailableAt(nil, time.Minute); got != nil {
		t.Errorf("NextAvailableAt(nil) = %v, want nil", got)
	}

	last := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	want := last.Add(15 * time.Minute)
	got := NextAvailableAt(&last, 15*time.Minute)
	if got == nil || !got.Equal(want) {
		t.Errorf("NextAvailableAt() = %v, want %v", got, want)
	}
}

func TestRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 15 * time.Minute

	if got := Remaining(nil, cooldown, now); got != 0 {
		t.Errorf("Remaining(nil) = %v, want 0", got)
	}

	last := now.Add(-10 * time.Minute)
	if got := Remaining(&last, cooldown, now); got != 5*time.Minute {
		t.Errorf("Remaining() = %v, want 5m", got)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
