package models

import "time"

// Reply log statuses
const (
	LogSent      = "sent"
	LogDuplicate = "duplicate"
	LogRetry     = "retry"
	LogDeferred  = "deferred"
	LogFailed    = "failed"
)

// ReplyLog is an audit entry for a processing attempt.
type ReplyLog struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID string    `json:"message_id" gorm:"type:varchar(255);not null;index"`
	JobID     string    `json:"job_id" gorm:"type:varchar(36);index"`
	Status    string    `json:"status" gorm:"type:varchar(20);not null"`
	Category  Category  `json:"category" gorm:"type:varchar(32)"`
	Attempt   int       `json:"attempt"`
	ErrorMsg  string    `json:"error_msg" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for ReplyLog
func (ReplyLog) TableName() string {
	return "reply_logs"
}

// FetchCursor stores the provider cursor per mailbox between fetch cycles.
type FetchCursor struct {
	Mailbox   string    `json:"mailbox" gorm:"primaryKey;type:varchar(255)"`
	Cursor    string    `json:"cursor" gorm:"column:cursor_value;type:varchar(255)"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for FetchCursor
func (FetchCursor) TableName() string {
	return "fetch_cursors"
}
