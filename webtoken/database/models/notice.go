package models

import (
	"time"

	"github.com/uptrace/bun"
)

type NoticeDisplayMode string

const (
	NoticeModal   NoticeDisplayMode = "modal"
	NoticeSidebar NoticeDisplayMode = "sidebar"
	NoticeBoth    NoticeDisplayMode = "both"
)

// Notice is an admin-managed announcement shown to claimants.
type Notice struct {
	bun.BaseModel `bun:"table:notices,alias:n"`

	ID          string            `bun:"id,pk,type:uuid"`
	Content     string            `bun:"content,notnull"`
	DisplayMode NoticeDisplayMode `bun:"display_mode,notnull,default:'modal'"`
	IsActive    bool              `bun:"is_active,notnull,default:true"`
	CreatedAt   time.Time         `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time         `bun:"updated_at,notnull,default:current_timestamp"`
}

// ValidDisplayMode reports whether m is one of the accepted modes.
func ValidDisplayMode(m string) bool {
	switch NoticeDisplayMode(m) {
	case NoticeModal, NoticeSidebar, NoticeBoth:
		return true
	}
	return false
}
