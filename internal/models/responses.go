package models

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Mailbox   string            `json:"mailbox"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// QueueStats summarizes reply jobs by status.
type QueueStats struct {
	Pending  int64 `json:"pending"`
	InFlight int64 `json:"in_flight"`
	Done     int64 `json:"done"`
	Failed   int64 `json:"failed"`
}

// ReplyDetail is the reply record and job history for one source message.
type ReplyDetail struct {
	MessageID string       `json:"message_id"`
	Record    *ReplyRecord `json:"record,omitempty"`
	Jobs      []ReplyJob   `json:"jobs"`
}

// FetchResult summarizes one fetch cycle.
type FetchResult struct {
	Listed     int    `json:"listed"`
	Skipped    int    `json:"skipped"`
	Enqueued   int    `json:"enqueued"`
	Duplicates int    `json:"duplicates"`
	Cursor     string `json:"cursor"`
}
