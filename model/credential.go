package model

import (
	"time"

	"gorm.io/gorm"
)

// CalendarCredential holds the calendar provider tokens of a single user.
// The row exists only while the user is connected; there is no status column
// and no soft delete.
type CalendarCredential struct {
	ID           uint      `gorm:"primarykey"                         json:"id"`
	UserID       string    `gorm:"uniqueIndex;size:64;not null"       json:"userId"`
	Provider     string    `gorm:"size:32;not null"                   json:"provider"`
	AccessToken  string    `gorm:"size:4096;not null"                 json:"accessToken"`
	RefreshToken string    `gorm:"size:2048;not null"                 json:"refreshToken"`
	TokenType    string    `gorm:"size:32;not null;default:'Bearer'"  json:"tokenType"`
	Scope        string    `gorm:"size:1024;not null"                 json:"scope"` // space-delimited, informational only
	ExpiresAt    time.Time `gorm:"index"                              json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (c *CalendarCredential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = GenerateID()
	}
	return nil
}

// IsExpired reports whether the access token must be refreshed before use.
// A zero ExpiresAt means the provider did not report an expiry.
func (c *CalendarCredential) IsExpired(now time.Time, leeway time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !c.ExpiresAt.After(now.Add(leeway))
}
