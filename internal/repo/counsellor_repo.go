// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the counsellor
// roster and per-counsellor channel bindings.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate")

// CreateCounsellor inserts a counsellor. Returns ErrDuplicate when the
// username is already taken.
func CreateCounsellor(ctx context.Context, db *gorm.DB, username, email, name string) (*domain.Counsellor, error) {
	if name == "" {
		name = username
	}
	c := &domain.Counsellor{
		Username:  username,
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// GetCounsellor fetches a counsellor with channels preloaded, or ErrNotFound.
func GetCounsellor(ctx context.Context, db *gorm.DB, username string) (*domain.Counsellor, error) {
	var c domain.Counsellor
	err := db.WithContext(ctx).
		Preload("Channels", func(tx *gorm.DB) *gorm.DB { return tx.Order("priority asc") }).
		Where("username = ?", username).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCounsellors returns the active roster in stable (insertion) order.
// Round-robin selection depends on this ordering staying deterministic.
func ListCounsellors(ctx context.Context, db *gorm.DB) ([]domain.Counsellor, error) {
	var out []domain.Counsellor
	err := db.WithContext(ctx).
		Order("created_at asc, username asc").
		Find(&out).Error
	return out, err
}

// DeleteCounsellor removes a counsellor and (by FK cascade) their channels.
// Returns ErrNotFound when the username does not exist.
func DeleteCounsellor(ctx context.Context, db *gorm.DB, username string) error {
	res := db.WithContext(ctx).
		Where("username = ?", username).
		Delete(&domain.Counsellor{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddCounsellorChannel binds an outbound channel to a counsellor.
// (counsellor, channel) pairs are unique; a second insert for the same pair
// returns ErrDuplicate.
func AddCounsellorChannel(ctx context.Context, db *gorm.DB, counsellor, channel, address string, authKey *string, priority int) error {
	ch := &domain.CounsellorChannel{
		Counsellor: counsellor,
		Channel:    channel,
		Address:    address,
		AuthKey:    authKey,
		Priority:   priority,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ch).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetCounsellorChannel returns the binding for a given channel type, or, if
// channel is empty, the counsellor's highest-priority binding. ErrNotFound
// when the counsellor has no matching channel.
func GetCounsellorChannel(ctx context.Context, db *gorm.DB, counsellor, channel string) (*domain.CounsellorChannel, error) {
	q := db.WithContext(ctx).Where("counsellor = ?", counsellor)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	var ch domain.CounsellorChannel
	if err := q.Order("priority asc").First(&ch).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

// FindCounsellorByAddress returns the channel binding whose address matches,
// or ErrNotFound. Used to recognize inbound messages sent by counsellors.
func FindCounsellorByAddress(ctx context.Context, db *gorm.DB, address string) (*domain.CounsellorChannel, error) {
	var ch domain.CounsellorChannel
	if err := db.WithContext(ctx).Where("address = ?", address).First(&ch).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetCounsellorToken returns the auth key stored for a counsellor's channel,
// or ErrNotFound when the channel binding or key is missing.
func GetCounsellorToken(ctx context.Context, db *gorm.DB, counsellor, channel string) (string, error) {
	ch, err := GetCounsellorChannel(ctx, db, counsellor, channel)
	if err != nil {
		return "", err
	}
	if ch.AuthKey == nil || *ch.AuthKey == "" {
		return "", gorm.ErrRecordNotFound
	}
	return *ch.AuthKey, nil
}

// isUniqueViolation matches the driver-specific shapes of a uniqueness error.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
