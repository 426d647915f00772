package allocation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized covers a missing, disabled, or expired key.
	ErrUnauthorized = errors.New("key invalid, inactive, or expired")

	// ErrOutOfStock means no eligible token remained after bounded retries.
	// A claim that repeatedly lost commit races reports the same outcome;
	// the distinction only shows up in logs.
	ErrOutOfStock = errors.New("token pool exhausted")
)

// RateLimitedError reports a claim rejected by the cooldown window, whether
// caught by the advisory pre-check or by the atomic update.
type RateLimitedError struct {
	BlockedUntil time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("claim cooldown active until %s", e.BlockedUntil.Format(time.RFC3339))
}
