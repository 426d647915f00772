// Package ratelimit computes claim cooldown state from a key's last issue
// timestamp. The allocation engine and the status endpoint share these
// functions as the single definition of "limited".
package ratelimit

import "time"

// Result reports whether a claim is currently permitted.
type Result struct {
	Limited         bool
	NextAvailableAt *time.Time
}

// NextAvailableAt returns the instant the next claim becomes permitted, or
// nil when the key has never been issued a token.
func NextAvailableAt(lastTokenAt *time.Time, cooldown time.Duration) *time.Time {
	if lastTokenAt == nil {
		return nil
	}
	next := lastTokenAt.Add(cooldown)
	return &next
}

// Check evaluates the cooldown window at the given instant.
func Check(lastTokenAt *time.Time, cooldown time.Duration, now time.Time) Result {
	next := NextAvailableAt(lastTokenAt, cooldown)
	if next == nil || !now.Before(*next) {
		return Result{Limited: false}
	}
	return Result{Limited: true, NextAvailableAt: next}
}

// Remaining returns how long until the next claim is permitted, zero when
// not limited.
func Remaining(lastTokenAt *time.Time, cooldown time.Duration, now time.Time) time.Duration {
	res := Check(lastTokenAt, cooldown, now)
	if !res.Limited {
		return 0
	}
	return res.NextAvailableAt.Sub(now)
}
