package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Key is a credential-bearing principal eligible to claim tokens. Keys are
// never hard-deleted; revocation flips IsActive off.
type Key struct {
	bun.BaseModel `bun:"table:keys,alias:k"`

	ID          string     `bun:"id,pk,type:uuid"`
	Key         string     `bun:"key,notnull,unique"`
	ExpiresAt   time.Time  `bun:"expires_at,notnull"`
	IsActive    bool       `bun:"is_active,notnull,default:true"`
	LastTokenAt *time.Time `bun:"last_token_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// Usable reports whether the key may claim at the given instant.
// The cooldown window is checked separately by the rate limiter.
func (k *Key) Usable(now time.Time) bool {
	return k.IsActive && k.ExpiresAt.After(now)
}
