// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UserExists reports whether a user row exists for the given channel address.
func UserExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Count(&n).Error
	return n > 0, err
}

// CreateUser inserts a new user in the initial handler state.
// The channel address is the primary key; CreatedAt is set to UTC.
func CreateUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	u := &domain.User{
		ID:        id,
		Handler:   domain.HandlerNew,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by channel address, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserHandler moves a user to a new handler state, clearing or keeping
// the onboarding cursor so the cursor is non-null exactly while onboarding.
// The handler value is validated here; the column update below does not run
// create hooks. Passing cursor as nil while entering onboarding is the
// caller's bug.
func UpdateUserHandler(ctx context.Context, db *gorm.DB, id string, handler domain.HandlerState, cursor *string) error {
	if !handler.Valid() {
		return domain.ErrInvalidHandler
	}
	if handler != domain.HandlerOnboarding {
		cursor = nil
	}
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"handler":        handler,
			"onboarding_key": cursor,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// allowedUserFields limits UpdateUserField to columns the onboarding engine
// and escalation flow are supposed to touch.
var allowedUserFields = map[string]struct{}{
	"language":       {},
	"onboarding_key": {},
	"auth_token":     {},
	"age":            {},
	"gender":         {},
	"location":       {},
}

// ErrFieldNotAllowed is returned when UpdateUserField is asked to write a
// column outside the allowed profile set.
var ErrFieldNotAllowed = errors.New("user field not updatable")

// UpdateUserField updates a single allowed user column.
// Returns ErrNotFound if the user does not exist.
func UpdateUserField(ctx context.Context, db *gorm.DB, id, field string, value any) error {
	if _, ok := allowedUserFields[field]; !ok {
		return ErrFieldNotAllowed
	}
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update(field, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountUsers returns the total number of registered users.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error
	return total, err
}

// ListUsersPage returns a page of users ordered by creation time descending.
// The caller computes offset and limit (e.g., (page-1)*pageSize).
func ListUsersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
