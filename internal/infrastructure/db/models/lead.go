package models

import "time"

type Lead struct {
	ID          string  `gorm:"type:varchar(36);primaryKey"`
	ExternalID  string  `gorm:"size:255;index"`
	FirstName   string  `gorm:"size:255"`
	LastName    string  `gorm:"size:255"`
	Email       string  `gorm:"size:255;index"`
	Phone       string  `gorm:"size:50;index"`
	Company     string  `gorm:"size:255"`
	JobTitle    string  `gorm:"size:255"`
	Address     string  `gorm:"size:255"`
	PostalCode  string  `gorm:"size:20"`
	City        string  `gorm:"size:255"`
	Country     string  `gorm:"size:255"`
	Website     string  `gorm:"size:255"`
	Notes       string  `gorm:"type:text"`
	Status      string  `gorm:"size:50"`
	Source      string  `gorm:"size:100"`
	AssignedTo  *string `gorm:"type:varchar(36);index"`
	ImportJobID *string `gorm:"type:varchar(36);index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Lead) TableName() string {
	return "leads"
}

type LeadHistory struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	LeadID      string  `gorm:"type:varchar(36);not null;index"`
	EventType   string  `gorm:"size:30;not null"`
	ImportJobID *string `gorm:"type:varchar(36);index"`
	Action      string  `gorm:"size:20;not null"`
	RowNumber   int     `gorm:"not null;default:0"`
	CreatedAt   time.Time
}

func (LeadHistory) TableName() string {
	return "lead_history"
}
