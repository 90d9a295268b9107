package models

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Role struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;size:32;not null" json:"name"`
	Description string `json:"description"`
	IsSystem    bool   `gorm:"default:false" json:"is_system"`
}
