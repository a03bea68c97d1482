package models

import "time"

// ReplyStatus is the dedup state of a source message.
type ReplyStatus string

const (
	ReplyInFlight ReplyStatus = "in_flight"
	ReplyReleased ReplyStatus = "released"
	ReplySent     ReplyStatus = "sent"
	ReplyFailed   ReplyStatus = "failed"
)

// ReplyRecord tracks one source message. A row in status sent is the proof
// that the message has been answered; MessageID is unique across the table.
type ReplyRecord struct {
	ID            uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID     string      `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	Status        ReplyStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Category      Category    `json:"category" gorm:"type:varchar(32)"`
	SentMessageID string      `json:"sent_message_id" gorm:"type:varchar(512)"`
	SentAt        *time.Time  `json:"sent_at"`
	ClaimExpiry   int64       `json:"claim_expiry"` // unix millis
	ClaimedBy     string      `json:"claimed_by" gorm:"type:varchar(64)"`
	LastError     string      `json:"last_error" gorm:"type:text"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName specifies the table name for ReplyRecord
func (ReplyRecord) TableName() string {
	return "reply_records"
}
