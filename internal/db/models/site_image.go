package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SiteSlot string

const (
	SiteSlotHero SiteSlot = "hero"
	SiteSlotLogo SiteSlot = "logo"
)

func (s SiteSlot) Valid() bool {
	return s == SiteSlotHero || s == SiteSlotLogo
}

// SiteImage holds the current image of a singleton site slot. Slot is the
// primary key, so the table can never hold two rows for one slot.
type SiteImage struct {
	bun.BaseModel `bun:"table:site_images,alias:si"`

	Slot      SiteSlot  `bun:",pk"`
	Url       string    `bun:",notnull"`
	FileHash  string    `bun:",notnull"`
	ObjectKey string    `bun:",notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
