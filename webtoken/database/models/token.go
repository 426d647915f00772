package models

import (
	"time"

	"github.com/uptrace/bun"
)

// MaxClaims is the hard cap on how many distinct keys may share one token.
const MaxClaims = 2

// Token is one unit of the distributable pool. ClaimCount tracks completed
// deliveries and never exceeds MaxClaims. AssignedTo records the most recent
// claimant for display only; eligibility is decided by delivery rows.
type Token struct {
	bun.BaseModel `bun:"table:token_pool,alias:t"`

	ID         string     `bun:"id,pk,type:uuid"`
	Value      string     `bun:"value,notnull,unique"`
	ClaimCount int        `bun:"claim_count,notnull,default:0"`
	AssignedTo *string    `bun:"assigned_to,type:uuid"`
	AssignedAt *time.Time `bun:"assigned_at"`
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// Exhausted reports whether the token is permanently unavailable.
func (t *Token) Exhausted() bool {
	return t.ClaimCount >= MaxClaims
}
