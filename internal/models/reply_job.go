package models

import "time"

// JobStatus is the lifecycle state of a ReplyJob.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobInFlight JobStatus = "in_flight"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
)

// ReplyJob is a durable unit of work: produce and send a reply for one message.
// ActiveKey holds the message id while the job is pending or in flight and is
// NULL otherwise, so the unique index allows one active job per message.
type ReplyJob struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MessageID         string    `json:"message_id" gorm:"type:varchar(255);not null;index"`
	ActiveKey         *string   `json:"-" gorm:"type:varchar(255);uniqueIndex"`
	ThreadID          string    `json:"thread_id" gorm:"type:varchar(255)"`
	InternetMessageID string    `json:"internet_message_id" gorm:"type:varchar(512)"`
	Sender            string    `json:"sender" gorm:"type:varchar(512)"`
	Subject           string    `json:"subject" gorm:"type:text"`
	Body              string    `json:"-" gorm:"type:text"`
	ReceivedAt        time.Time `json:"received_at"`
	Status            JobStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Attempt           int       `json:"attempt" gorm:"not null;default:0"`
	VisibleAt         int64     `json:"visible_at" gorm:"not null;index"` // unix millis
	LeaseToken        string    `json:"-" gorm:"type:varchar(36)"`
	LastError         string    `json:"last_error" gorm:"type:text"`
	FinishedAt        int64     `json:"finished_at" gorm:"index"` // unix millis, 0 while active
	EnqueuedAt        time.Time `json:"enqueued_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for ReplyJob
func (ReplyJob) TableName() string {
	return "reply_jobs"
}

// NewReplyJob snapshots msg into a pending job.
func NewReplyJob(id string, msg RawMessage) ReplyJob {
	return ReplyJob{
		ID:                id,
		MessageID:         msg.ID,
		ThreadID:          msg.ThreadID,
		InternetMessageID: msg.InternetMessageID,
		Sender:            msg.Sender,
		Subject:           msg.Subject,
		Body:              msg.Body,
		ReceivedAt:        msg.ReceivedAt,
		Status:            JobPending,
	}
}

// Message rebuilds the RawMessage captured at enqueue time.
func (j ReplyJob) Message() RawMessage {
	return RawMessage{
		ID:                j.MessageID,
		ThreadID:          j.ThreadID,
		InternetMessageID: j.InternetMessageID,
		Sender:            j.Sender,
		Subject:           j.Subject,
		Body:              j.Body,
		ReceivedAt:        j.ReceivedAt,
	}
}
