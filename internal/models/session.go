package models

import (
	"strings"
	"time"
)

// DeviceClass separates mobile clients from everything else. Mobile
// sessions survive eviction longer.
type DeviceClass string

const (
	DeviceMobile DeviceClass = "mobile"
	DeviceOther  DeviceClass = "other"
)

// TokenTypeBearer is the only token type handed out.
const TokenTypeBearer = "Bearer"

// ClassifyDevice maps a User-Agent header to a DeviceClass.
func ClassifyDevice(userAgent string) DeviceClass {
	if strings.Contains(strings.ToLower(userAgent), "mobile") {
		return DeviceMobile
	}
	return DeviceOther
}

// Session pairs a bearer token with its rotation token. ID grows with
// insertion order, so the smallest ID of an owner is its oldest session.
type Session struct {
	ID               uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           string      `gorm:"size:64;not null;index" json:"user_id"`
	AccessToken      string      `gorm:"size:1024;not null;index" json:"-"`
	AccessExpiresAt  time.Time   `json:"access_expires_at"`
	RefreshToken     string      `gorm:"size:64;not null;uniqueIndex" json:"-"`
	RefreshExpiresAt time.Time   `gorm:"index" json:"refresh_expires_at"`
	TokenType        string      `gorm:"size:16;not null;default:Bearer" json:"token_type"`
	DeviceClass      DeviceClass `gorm:"size:16;not null" json:"device_class"`
	Revoked          bool        `gorm:"default:false" json:"revoked"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// IsMobile reports whether the session was opened from a mobile client.
func (s *Session) IsMobile() bool {
	return s.DeviceClass == DeviceMobile
}

// RotationExpired reports whether the rotation window has closed at now.
// The boundary instant itself is still valid.
func (s *Session) RotationExpired(now time.Time) bool {
	return now.After(s.RefreshExpiresAt)
}
