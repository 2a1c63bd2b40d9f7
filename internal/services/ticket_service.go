// Package services – TicketService
//
// This file implements the ticket lifecycle. Escalate snapshots the
// conversation into a ticket, picks a counsellor round-robin, records the
// assignment, and notifies the counsellor through whichever channel the
// deployment mode prescribes. Notification is best effort: the ticket and
// assignment are already durable, so a failed notification is logged and
// the queue is still workable from the admin API.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/chatapp"
	"github.com/awaa-health/go-counsel-backend/internal/delivery"
	"github.com/awaa-health/go-counsel-backend/internal/domain"
	"github.com/awaa-health/go-counsel-backend/internal/repo"
)

// MessageSender is the outbound delivery contract the services need.
// *delivery.Sender and *delivery.PersistingSender both satisfy it.
type MessageSender interface {
	SendText(ctx context.Context, route, recipient, body string) (*delivery.Result, error)
	SendOptions(ctx context.Context, route, recipient, body string, options []string) (*delivery.Result, error)
}

// TicketService manages ticket creation, assignment, status transitions,
// and counsellor notification.
type TicketService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Roster hands out counsellors for assignment.
	Roster *RosterService
	// Sender notifies counsellors on their messaging channels (single mode).
	Sender MessageSender
	// Chat bridges escalations into the companion chat app (multi mode).
	Chat chatapp.Client
	// Mode selects the notification path.
	Mode Mode
	// TranscriptLimit caps how many recent messages the snapshot keeps.
	TranscriptLimit int
}

// NewTicketService constructs a TicketService with a 50-message transcript cap.
func NewTicketService(db *gorm.DB, roster *RosterService, sender MessageSender, chat chatapp.Client, mode Mode) *TicketService {
	return &TicketService{
		DB:              db,
		Roster:          roster,
		Sender:          sender,
		Chat:            chat,
		Mode:            mode,
		TranscriptLimit: 50,
	}
}

// Escalate hands a user's conversation to a counsellor. It snapshots the
// recent history into the user's ticket (creating or re-opening it), picks
// the next counsellor, records exactly one assignment, moves the user to
// the escalated state, and notifies the counsellor. When the roster is
// empty the ticket stays open and unassigned; the returned counsellor is
// nil and the caller tells the user someone will reach out.
func (s *TicketService) Escalate(ctx context.Context, user *domain.User) (*domain.Ticket, *domain.Counsellor, error) {
	transcript, err := s.snapshot(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	ticket, err := repo.UpsertTicket(ctx, s.DB, user.ID, transcript)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.UpdateUserHandler(ctx, s.DB, user.ID, domain.HandlerEscalated, nil); err != nil {
		return nil, nil, err
	}

	counsellor, err := s.Roster.Next(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCounsellors) {
			log.Warn().Str("ticket", ticket.ID).Msg("escalation with empty roster; ticket left unassigned")
			return ticket, nil, nil
		}
		return nil, nil, err
	}
	if err := repo.AssignTicketHandler(ctx, s.DB, ticket.ID, counsellor.Username); err != nil {
		return nil, nil, err
	}
	ticket.Handler = &counsellor.Username
	ticket.Status = domain.TicketInProgress

	if err := s.notify(ctx, user, ticket, counsellor); err != nil {
		log.Error().Err(err).
			Str("ticket", ticket.ID).
			Str("counsellor", counsellor.Username).
			Msg("counsellor notification failed; assignment stands")
	}
	return ticket, counsellor, nil
}

// snapshot renders the user's recent history as the ticket transcript.
func (s *TicketService) snapshot(ctx context.Context, userID string) (string, error) {
	msgs, err := repo.ListMessagesForUser(ctx, s.DB, userID, s.TranscriptLimit)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.CreatedAt.UTC().Format("2006-01-02 15:04"), m.From, m.Content)
	}
	return b.String(), nil
}

// notify reaches the assigned counsellor per the deployment mode.
func (s *TicketService) notify(ctx context.Context, user *domain.User, ticket *domain.Ticket, counsellor *domain.Counsellor) error {
	switch s.Mode {
	case ModeSingle:
		ch, err := repo.GetCounsellorChannel(ctx, s.DB, counsellor.Username, "")
		if err != nil {
			return fmt.Errorf("counsellor %s has no channel binding: %w", counsellor.Username, err)
		}
		body := fmt.Sprintf("New ticket %s from %s.\n\nRecent conversation:\n%s\nReply here to talk to them.",
			ticket.ID, user.ID, ticket.Transcript)
		_, err = s.Sender.SendText(ctx, ch.Channel, ch.Address, body)
		return err
	case ModeMulti:
		return s.bridgeRoom(ctx, user, ticket, counsellor)
	default:
		return nil
	}
}

// bridgeRoom provisions (or reuses) the private chat-app room for the
// user/counsellor pair and posts the ticket transcript into it.
func (s *TicketService) bridgeRoom(ctx context.Context, user *domain.User, ticket *domain.Ticket, counsellor *domain.Counsellor) error {
	if s.Chat == nil {
		return fmt.Errorf("multi mode without a chat app client")
	}
	token, err := s.userToken(ctx, user)
	if err != nil {
		return err
	}
	slug := chatapp.RoomSlug(user.ID, counsellor.Username)
	exists, err := s.Chat.RoomExists(ctx, slug, token)
	if err != nil {
		return err
	}
	if !exists {
		if slug, err = s.Chat.CreateRoom(ctx, user.ID, counsellor.Username, token); err != nil {
			return err
		}
		if key, err := repo.GetCounsellorToken(ctx, s.DB, counsellor.Username, "chat_app"); err == nil {
			if err := s.Chat.JoinRoom(ctx, slug, key); err != nil {
				log.Error().Err(err).Str("room", slug).Msg("counsellor could not be joined to room")
			}
		}
	}
	intro := fmt.Sprintf("Ticket %s escalated.\n\n%s", ticket.ID, ticket.Transcript)
	return s.Chat.SendMessage(ctx, slug, intro, token)
}

// userToken returns the user's chat-app token, provisioning and persisting
// one on first use.
func (s *TicketService) userToken(ctx context.Context, user *domain.User) (string, error) {
	if user.AuthToken != nil && *user.AuthToken != "" {
		return *user.AuthToken, nil
	}
	token, err := s.Chat.CreateUserToken(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if err := repo.UpdateUserField(ctx, s.DB, user.ID, "auth_token", token); err != nil {
		return "", err
	}
	user.AuthToken = &token
	return token, nil
}

// RelayToCounsellor forwards an escalated user's message to the assigned
// counsellor. In single mode it lands on the counsellor's channel; in multi
// mode it is posted into the shared room.
func (s *TicketService) RelayToCounsellor(ctx context.Context, user *domain.User, text string) error {
	ticket, err := repo.GetTicket(ctx, s.DB, repo.TicketID(user.ID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTicketNotFound
		}
		return err
	}
	if ticket.Handler == nil {
		return ErrNoCounsellors
	}
	switch s.Mode {
	case ModeSingle:
		ch, err := repo.GetCounsellorChannel(ctx, s.DB, *ticket.Handler, "")
		if err != nil {
			return err
		}
		_, err = s.Sender.SendText(ctx, ch.Channel, ch.Address, fmt.Sprintf("[%s] %s", user.ID, text))
		return err
	case ModeMulti:
		token, err := s.userToken(ctx, user)
		if err != nil {
			return err
		}
		return s.Chat.SendMessage(ctx, chatapp.RoomSlug(user.ID, *ticket.Handler), text, token)
	default:
		return nil
	}
}

// SetStatus transitions a ticket. Closing a ticket hands the user back to
// the AI so the conversation can continue.
func (s *TicketService) SetStatus(ctx context.Context, ticketID, status string) error {
	switch status {
	case domain.TicketOpen, domain.TicketInProgress, domain.TicketClosed:
	default:
		return ErrInvalidTicketStatus
	}
	ticket, err := repo.GetTicket(ctx, s.DB, ticketID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTicketNotFound
		}
		return err
	}
	if err := repo.UpdateTicketStatus(ctx, s.DB, ticketID, status); err != nil {
		return err
	}
	if status == domain.TicketClosed {
		if err := repo.UpdateUserHandler(ctx, s.DB, ticket.UserID, domain.HandlerAIAssisted, nil); err != nil {
			log.Error().Err(err).Str("user", ticket.UserID).Msg("user not returned to AI after ticket close")
		}
	}
	return nil
}

// Get fetches a ticket with its assignment history.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, []domain.TicketAssignment, error) {
	ticket, err := repo.GetTicket(ctx, s.DB, ticketID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrTicketNotFound
		}
		return nil, nil, err
	}
	assignments, err := repo.ListAssignments(ctx, s.DB, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, assignments, nil
}

// ListPage returns a page of tickets with the total count.
func (s *TicketService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Ticket, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountTickets(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Ticket{}, 0, nil
	}
	items, err := repo.ListTicketsPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	return items, total, err
}
