package models

import "time"

// DateLayout is the calendar-day format stored in LastLoginDate (UTC days).
const DateLayout = "2006-01-02"

// DailyStats holds the per-identity validation counter for one calendar day.
type DailyStats struct {
	Identity             string    `gorm:"primaryKey" json:"identity"`
	DailyValidationCount int64     `gorm:"not null;default:0" json:"daily_validation_count"`
	LastLoginDate        string    `gorm:"size:10;not null" json:"last_login_date"`
	UpdatedAt            time.Time `gorm:"index" json:"updated_at"`
}

func (DailyStats) TableName() string {
	return "daily_stats"
}
