package models

import (
	"time"
)

// Company represents an entry in the company registry. Active companies
// form the working set of tickers when no explicit list is configured.
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Ticker    string    `gorm:"uniqueIndex;not null" json:"ticker"`
	Name      string    `json:"name"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
