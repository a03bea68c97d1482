package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/models"
)

// ClaimOutcome is the result of an attempt to claim a message for sending.
type ClaimOutcome int

const (
	ClaimAcquired ClaimOutcome = iota
	ClaimAlreadyReplied
	ClaimHeldByOther
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimAcquired:
		return "acquired"
	case ClaimAlreadyReplied:
		return "already_replied"
	case ClaimHeldByOther:
		return "held_by_other"
	}
	return "unknown"
}

// ClaimResult describes a MarkInFlight call. Expiry is set when another
// worker holds a live claim.
type ClaimResult struct {
	Outcome ClaimOutcome
	Expiry  time.Time
}

// Claimed reports whether the caller now owns the message.
func (c ClaimResult) Claimed() bool {
	return c.Outcome == ClaimAcquired
}

// Err returns nil for an acquired claim and an error wrapping
// apperrors.ErrDuplicateClaim otherwise.
func (c ClaimResult) Err() error {
	if c.Claimed() {
		return nil
	}
	return fmt.Errorf("%w: %s", apperrors.ErrDuplicateClaim, c.Outcome)
}

// Repository is the dedup and state store backed by gorm.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithClock replaces the time source used for claim expiry.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// HasReplied reports whether a reply has been recorded for messageID.
func (r *Repository) HasReplied(ctx context.Context, messageID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.ReplyRecord{}).
		Where("message_id = ? AND status = ?", messageID, models.ReplySent).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking reply record: %w", result.Error)
	}
	return count > 0, nil
}

// IsHandled reports whether messageID was replied to or failed permanently.
func (r *Repository) IsHandled(ctx context.Context, messageID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.ReplyRecord{}).
		Where("message_id = ? AND status IN ?", messageID, []models.ReplyStatus{models.ReplySent, models.ReplyFailed}).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking reply record: %w", result.Error)
	}
	return count > 0, nil
}

// MarkInFlight atomically claims messageID for owner until now+ttl.
// The claim succeeds when no record exists, or the record is released or
// failed, or a previous claim has expired. A sent record is never reclaimed.
func (r *Repository) MarkInFlight(ctx context.Context, messageID, owner string, ttl time.Duration) (ClaimResult, error) {
	now := r.now()
	expiry := now.Add(ttl)

	record := models.ReplyRecord{
		MessageID:   messageID,
		Status:      models.ReplyInFlight,
		ClaimExpiry: expiry.UnixMilli(),
		ClaimedBy:   owner,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return ClaimResult{}, fmt.Errorf("failed to insert claim: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return ClaimResult{Outcome: ClaimAcquired, Expiry: expiry}, nil
	}

	result = r.db.WithContext(ctx).Model(&models.ReplyRecord{}).
		Where("message_id = ? AND status <> ?", messageID, models.ReplySent).
		Where("(status IN ? OR claim_expiry <= ?)",
			[]models.ReplyStatus{models.ReplyReleased, models.ReplyFailed}, now.UnixMilli()).
		Updates(map[string]interface{}{
			"status":       models.ReplyInFlight,
			"claim_expiry": expiry.UnixMilli(),
			"claimed_by":   owner,
			"last_error":   "",
		})
	if result.Error != nil {
		return ClaimResult{}, fmt.Errorf("failed to update claim: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return ClaimResult{Outcome: ClaimAcquired, Expiry: expiry}, nil
	}

	existing, err := r.GetRecord(ctx, messageID)
	if err != nil {
		return ClaimResult{}, err
	}
	if existing == nil {
		return ClaimResult{}, fmt.Errorf("claim for %s vanished", messageID)
	}
	if existing.Status == models.ReplySent {
		return ClaimResult{Outcome: ClaimAlreadyReplied}, nil
	}
	return ClaimResult{Outcome: ClaimHeldByOther, Expiry: time.UnixMilli(existing.ClaimExpiry)}, nil
}

// RecordSent marks messageID as replied. It only runs after a confirmed send,
// so it does not depend on the caller still holding the claim.
func (r *Repository) RecordSent(ctx context.Context, messageID string, category models.Category, sentMessageID string) error {
	sentAt := r.now()
	result := r.db.WithContext(ctx).Model(&models.ReplyRecord{}).
		Where("message_id = ? AND status <> ?", messageID, models.ReplySent).
		Updates(map[string]interface{}{
			"status":          models.ReplySent,
			"category":        category,
			"sent_message_id": sentMessageID,
			"sent_at":         sentAt,
			"claim_expiry":    0,
			"claimed_by":      "",
			"last_error":      "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record sent reply: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	record := models.ReplyRecord{
		MessageID:     messageID,
		Status:        models.ReplySent,
		Category:      category,
		SentMessageID: sentMessageID,
		SentAt:        &sentAt,
	}
	result = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to record sent reply: %w", result.Error)
	}
	return nil
}

// ReleaseInFlight drops owner's claim so a later attempt can reclaim it.
func (r *Repository) ReleaseInFlight(ctx context.Context, messageID, owner string) error {
	result := r.db.WithContext(ctx).Model(&models.ReplyRecord{}).
		Where("message_id = ? AND status = ? AND claimed_by = ?", messageID, models.ReplyInFlight, owner).
		Updates(map[string]interface{}{
			"status":       models.ReplyReleased,
			"claim_expiry": 0,
			"claimed_by":   "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release claim: %w", result.Error)
	}
	return nil
}

// MarkFailed records a permanent failure and releases the claim. A live
// claim held by someone else, or a sent record, is left untouched.
func (r *Repository) MarkFailed(ctx context.Context, messageID, owner, errorMsg string) error {
	now := r.now().UnixMilli()
	result := r.db.WithContext(ctx).Model(&models.ReplyRecord{}).
		Where("message_id = ? AND status <> ?", messageID, models.ReplySent).
		Where("(claimed_by = ? OR status <> ? OR claim_expiry <= ?)", owner, models.ReplyInFlight, now).
		Updates(map[string]interface{}{
			"status":       models.ReplyFailed,
			"claim_expiry": 0,
			"claimed_by":   "",
			"last_error":   errorMsg,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark reply as failed: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	record := models.ReplyRecord{MessageID: messageID, Status: models.ReplyFailed, LastError: errorMsg}
	result = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to mark reply as failed: %w", result.Error)
	}
	return nil
}

// Reopen makes a failed message claimable again for an operator requeue.
func (r *Repository) Reopen(ctx context.Context, messageID string) error {
	result := r.db.WithContext(ctx).Model(&models.ReplyRecord{}).
		Where("message_id = ? AND status = ?", messageID, models.ReplyFailed).
		Updates(map[string]interface{}{"status": models.ReplyReleased})
	if result.Error != nil {
		return fmt.Errorf("failed to reopen reply record: %w", result.Error)
	}
	return nil
}

// GetRecord returns the record for messageID, or nil if none exists.
func (r *Repository) GetRecord(ctx context.Context, messageID string) (*models.ReplyRecord, error) {
	var record models.ReplyRecord
	result := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&record)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("database error loading reply record: %w", result.Error)
	}
	return &record, nil
}

// ListReplies returns reply records, newest first. An empty status lists all.
func (r *Repository) ListReplies(ctx context.Context, status models.ReplyStatus, limit int) ([]models.ReplyRecord, error) {
	var records []models.ReplyRecord
	query := r.db.WithContext(ctx).Order("updated_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&records); result.Error != nil {
		return nil, fmt.Errorf("failed to list reply records: %w", result.Error)
	}
	return records, nil
}

// LogReplyAttempt appends an audit entry.
func (r *Repository) LogReplyAttempt(ctx context.Context, entry models.ReplyLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	result := r.db.WithContext(ctx).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("failed to log reply attempt: %w", result.Error)
	}
	return nil
}

// ListLogs returns audit entries, newest first, optionally for one message.
func (r *Repository) ListLogs(ctx context.Context, messageID string, limit int) ([]models.ReplyLog, error) {
	var logs []models.ReplyLog
	query := r.db.WithContext(ctx).Order("id DESC")
	if messageID != "" {
		query = query.Where("message_id = ?", messageID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&logs); result.Error != nil {
		return nil, fmt.Errorf("failed to list reply logs: %w", result.Error)
	}
	return logs, nil
}

// PurgeLogs deletes audit entries older than the retention window.
func (r *Repository) PurgeLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.now().Add(-olderThan)
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ReplyLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge reply logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetCursor returns the stored fetch cursor for mailbox, or "" if none.
func (r *Repository) GetCursor(ctx context.Context, mailbox string) (string, error) {
	var cursor models.FetchCursor
	result := r.db.WithContext(ctx).Where("mailbox = ?", mailbox).First(&cursor)
	if result.Error == gorm.ErrRecordNotFound {
		return "", nil
	}
	if result.Error != nil {
		return "", fmt.Errorf("database error loading fetch cursor: %w", result.Error)
	}
	return cursor.Cursor, nil
}

// SaveCursor upserts the fetch cursor for mailbox.
func (r *Repository) SaveCursor(ctx context.Context, mailbox, value string) error {
	cursor := models.FetchCursor{Mailbox: mailbox, Cursor: value, UpdatedAt: r.now()}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mailbox"}},
			DoUpdates: clause.AssignmentColumns([]string{"cursor_value", "updated_at"}),
		}).
		Create(&cursor)
	if result.Error != nil {
		return fmt.Errorf("failed to save fetch cursor: %w", result.Error)
	}
	return nil
}
