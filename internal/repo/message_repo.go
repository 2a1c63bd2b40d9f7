// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// message log.
//
// The log is never updated in place: AppendMessage inserts, the list
// functions read in timestamp order, and that ordering is what transcript
// building and AI history assembly rely on.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
)

// AppendMessage inserts one entry into the message log.
func AppendMessage(ctx context.Context, db *gorm.DB, from, to, msgType, content, source string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      msgType,
		Content:   content,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessagesForUser returns the conversation log for a user (messages sent
// by or addressed to the user), oldest first. A limit > 0 keeps the most
// recent entries: the query walks backwards and the result is re-sorted
// ascending so callers always see chronological order.
func ListMessagesForUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).
		Where("from_id = ? OR to_id = ?", userID, userID)
	if limit > 0 {
		var recent []domain.Message
		err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&recent).Error
		if err != nil {
			return nil, err
		}
		// reverse into ascending order
		for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
			recent[i], recent[j] = recent[j], recent[i]
		}
		return recent, nil
	}
	var out []domain.Message
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// CountMessagesForUser returns the size of a user's conversation log.
func CountMessagesForUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("from_id = ? OR to_id = ?", userID, userID).
		Count(&total).Error
	return total, err
}
