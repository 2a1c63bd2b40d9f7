// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file aggregates headline counts for the admin surface.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
)

// SystemStats is the snapshot returned by the admin stats endpoint.
type SystemStats struct {
	Users       int64 `json:"users"`
	Messages    int64 `json:"messages"`
	Tickets     int64 `json:"tickets"`
	OpenTickets int64 `json:"open_tickets"`
	Counsellors int64 `json:"counsellors"`
}

// CollectStats counts users, messages, tickets (total and non-closed), and
// counsellors in one pass. Counts are read without a shared snapshot; the
// numbers are informational, not transactional.
func CollectStats(ctx context.Context, db *gorm.DB) (*SystemStats, error) {
	var s SystemStats
	h := db.WithContext(ctx)

	if err := h.Model(&domain.User{}).Count(&s.Users).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Message{}).Count(&s.Messages).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Ticket{}).Count(&s.Tickets).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Ticket{}).
		Where("status <> ?", domain.TicketClosed).
		Count(&s.OpenTickets).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Counsellor{}).Count(&s.Counsellors).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
