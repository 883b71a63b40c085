package model

import "time"

// AuthTicket is the single persisted WSAA ticket slot for a service. A new
// ticket overwrites the row; RawResponse keeps the provider answer for audit
// and is what reads re-parse.
type AuthTicket struct {
	Service       string    `gorm:"type:varchar(40);primaryKey"`
	UniqueID      int64     `gorm:"not null"`
	Token         string    `gorm:"type:text;not null"`
	Sign          string    `gorm:"type:text;not null"`
	GeneratedAt   time.Time `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"not null"`
	LoginRequest  string    `gorm:"type:text"`
	SignedRequest string    `gorm:"type:text"`
	RawResponse   string    `gorm:"type:text;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (AuthTicket) TableName() string { return "afip_tickets" }
