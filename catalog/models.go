package catalog

import (
	"time"
)

type Run struct {
	ID         string `gorm:"primaryKey"`
	StartedAt  time.Time
	FinishedAt *time.Time
	Copied     int
	Failed     int
}

// TierCopy is a file the rotation engine placed into a tier.
type TierCopy struct {
	Path      string `gorm:"primaryKey"`
	Tier      string `gorm:"index"`
	Logical   string `gorm:"index"`
	Extension string
	Pattern   string
	Size      int64
	Hash      int64
	CreatedAt time.Time
}
