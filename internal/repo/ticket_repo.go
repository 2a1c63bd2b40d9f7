// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for tickets and
// their append-only assignment audit trail.
//
// Ticket identity is deterministic: TicketID(user) = "00T" + user ID. An
// escalation for a user that already has a ticket row reuses that row
// (status and transcript are refreshed); see DESIGN.md for the open-question
// decision behind this.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
)

// TicketID returns the deterministic ticket identity for a user.
func TicketID(userID string) string { return "00T" + userID }

// UpsertTicket creates the ticket row for a user, or re-opens the existing
// row with a fresh transcript snapshot. The returned ticket is always in
// status "open" with no handler.
func UpsertTicket(ctx context.Context, db *gorm.DB, userID, transcript string) (*domain.Ticket, error) {
	t := &domain.Ticket{
		ID:         TicketID(userID),
		UserID:     userID,
		Status:     domain.TicketOpen,
		Transcript: transcript,
		CreatedAt:  time.Now().UTC(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":     domain.TicketOpen,
				"handler":    nil,
				"transcript": transcript,
				"closed_at":  nil,
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(t).Error
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTicket fetches a ticket by ID, or ErrNotFound.
func GetTicket(ctx context.Context, db *gorm.DB, id string) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// AssignTicketHandler sets the counsellor on a ticket, moves it to
// in_progress, and appends the TicketAssignment audit record in one
// transaction so the audit trail cannot drift from the ticket row.
func AssignTicketHandler(ctx context.Context, db *gorm.DB, ticketID, counsellor string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Ticket{}).
			Where("id = ?", ticketID).
			Updates(map[string]any{
				"handler": counsellor,
				"status":  domain.TicketInProgress,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		rec := &domain.TicketAssignment{
			ID:         uuid.NewString(),
			TicketID:   ticketID,
			Counsellor: counsellor,
			CreatedAt:  time.Now().UTC(),
		}
		return tx.Create(rec).Error
	})
}

// UpdateTicketStatus transitions a ticket's status. Closing stamps ClosedAt.
func UpdateTicketStatus(ctx context.Context, db *gorm.DB, ticketID, status string) error {
	updates := map[string]any{"status": status}
	if status == domain.TicketClosed {
		now := time.Now().UTC()
		updates["closed_at"] = &now
	}
	res := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("id = ?", ticketID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ActiveTicketForCounsellor returns the most recently updated in_progress
// ticket assigned to a counsellor, or ErrNotFound. Counsellor replies are
// relayed to this ticket's user.
func ActiveTicketForCounsellor(ctx context.Context, db *gorm.DB, counsellor string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := db.WithContext(ctx).
		Where("handler = ? AND status = ?", counsellor, domain.TicketInProgress).
		Order("updated_at desc").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListOpenTickets returns tickets that are not closed, newest first.
func ListOpenTickets(ctx context.Context, db *gorm.DB) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := db.WithContext(ctx).
		Where("status <> ?", domain.TicketClosed).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListTicketsPage returns a page of tickets regardless of status,
// newest first.
func ListTicketsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountTickets returns the total number of tickets.
func CountTickets(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Ticket{}).Count(&total).Error
	return total, err
}

// ListAssignments returns the audit trail for a ticket, oldest first.
func ListAssignments(ctx context.Context, db *gorm.DB, ticketID string) ([]domain.TicketAssignment, error) {
	var out []domain.TicketAssignment
	err := db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
