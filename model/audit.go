package model

import (
	"time"

	"gorm.io/gorm"
)

type AuditEvent struct {
	ID        uint64    `gorm:"primaryKey"`
	UserID    string    `gorm:"size:64;not null;index"` // owner of the calendar credential
	EventType string    `gorm:"size:64;not null;index"` // calendar_connected, calendar_disconnected...
	Provider  string    `gorm:"size:32;index"`
	Reason    string    `gorm:"size:512"`         // failure reason or context
	IP        string    `gorm:"size:45;not null"` // IPv4/IPv6
	UserAgent string    `gorm:"size:512;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string {
	return "audit"
}

func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == 0 {
		e.ID = uint64(GenerateID())
	}
	return nil
}
