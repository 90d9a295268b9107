package models

import "time"

// User is an account identified by its phone number. Sessions reference it
// through Session.UserID only; there is no association back.
type User struct {
	BaseModel

	PhoneNumber string `gorm:"uniqueIndex;size:20;not null" json:"phone_number"`
	Password    string `gorm:"not null" json:"-"`
	FullName    string `gorm:"size:100" json:"full_name"`
	Address     string `gorm:"size:200" json:"address"`

	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	RoleID string `gorm:"type:uuid;not null;index" json:"role_id"`
	Role   *Role  `gorm:"foreignKey:RoleID" json:"role,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at"`
}

// RoleName returns the loaded role name or an empty string.
func (u *User) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}
