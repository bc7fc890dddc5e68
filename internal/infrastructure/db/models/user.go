package models

import "time"

// User is a CRM user leads can be assigned to.
type User struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:320;not null;uniqueIndex"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

// All returns every model the service migrates.
func All() []any {
	return []any{&ImportJob{}, &ImportRow{}, &Lead{}, &LeadHistory{}, &User{}}
}
