package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Delivery is the audit record of one key receiving one token. The unique
// (key_id, token_id) constraint is the correctness backstop for the
// "no key reclaims the same token" invariant.
type Delivery struct {
	bun.BaseModel `bun:"table:deliveries,alias:d"`

	ID          string    `bun:"id,pk,type:uuid"`
	KeyID       string    `bun:"key_id,notnull,type:uuid"`
	TokenID     string    `bun:"token_id,notnull,type:uuid"`
	DeliveredAt time.Time `bun:"delivered_at,notnull,default:current_timestamp"`
}
