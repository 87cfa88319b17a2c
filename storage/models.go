package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CaptureRecord is the archived metadata of one saved capture file.
type CaptureRecord struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	EntryID      string    `gorm:"index" json:"entry_id,omitempty"`
	DisplayIndex int       `gorm:"not null" json:"display_index"`
	DisplayName  string    `gorm:"not null" json:"display_name"`
	Path         string    `gorm:"not null;uniqueIndex" json:"path"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Bytes        int       `json:"bytes"`
	Quality      int       `json:"quality"`
	CapturedAt   time.Time `gorm:"not null;index" json:"captured_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *CaptureRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
