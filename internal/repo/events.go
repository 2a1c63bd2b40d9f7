// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file records processed webhook message IDs so that
// platform redeliveries do not run the state machine twice.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
)

// ErrDuplicateEvent is returned when a webhook message ID has already been
// recorded inside its TTL window.
var ErrDuplicateEvent = errors.New("duplicate event")

// MarkEventProcessed records a platform message ID. The unique primary key
// makes the first writer win; concurrent or repeated deliveries get
// ErrDuplicateEvent and should be acknowledged without side effects.
func MarkEventProcessed(ctx context.Context, db *gorm.DB, eventID, userID string, ttl time.Duration) error {
	if strings.TrimSpace(eventID) == "" {
		return nil // platform sent no ID; nothing to dedupe on
	}
	now := time.Now().UTC()
	rec := &domain.ProcessedEvent{
		ID:        eventID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

// EventSeen reports whether an event ID is recorded and still inside its
// TTL window.
func EventSeen(ctx context.Context, db *gorm.DB, eventID string) (bool, error) {
	if strings.TrimSpace(eventID) == "" {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ProcessedEvent{}).
		Where("id = ? AND expires_at > ?", eventID, time.Now().UTC()).
		Count(&n).Error
	return n > 0, err
}

// PurgeExpiredEvents deletes dedupe records past their TTL. Called
// opportunistically; losing the race with another purger is harmless.
func PurgeExpiredEvents(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Where("expires_at <= ?", time.Now().UTC()).
		Delete(&domain.ProcessedEvent{}).Error
}
