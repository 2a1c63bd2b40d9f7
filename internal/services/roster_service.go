// Package services – RosterService
//
// This file implements counsellor roster management and round-robin
// selection. Selection re-reads the roster on every call so that additions
// and removals take effect immediately, and advances a process-local atomic
// counter so concurrent escalations never pick the same counsellor twice in
// a row while the roster is stable.
package services

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/chatapp"
	"github.com/awaa-health/go-counsel-backend/internal/domain"
	"github.com/awaa-health/go-counsel-backend/internal/repo"
)

// RosterService manages the counsellor roster and hands out the next
// counsellor for assignment.
type RosterService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Chat provisions counsellor accounts in the companion chat app.
	// Used only in multi mode; nil otherwise.
	Chat chatapp.Client
	// Mode controls whether registration also provisions a chat-app account.
	Mode Mode

	counter atomic.Uint64
}

// NewRosterService constructs a RosterService. chat may be nil unless
// mode is ModeMulti.
func NewRosterService(db *gorm.DB, chat chatapp.Client, mode Mode) *RosterService {
	return &RosterService{DB: db, Chat: chat, Mode: mode}
}

// Next returns the counsellor the round-robin cursor lands on. The roster
// is fetched fresh so membership changes between calls are honored; the
// cursor only ever moves forward. Returns ErrNoCounsellors when the roster
// is empty.
func (s *RosterService) Next(ctx context.Context) (*domain.Counsellor, error) {
	roster, err := repo.ListCounsellors(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, ErrNoCounsellors
	}
	n := s.counter.Add(1) - 1
	c := roster[int(n%uint64(len(roster)))]
	return &c, nil
}

// Register adds a counsellor to the roster. In multi mode it also
// provisions a chat-app account and returns the magic sign-in link; a
// provisioning failure does not roll back the roster entry, it is reported
// in the returned link error field via log and an empty link.
func (s *RosterService) Register(ctx context.Context, username, email, name string) (*domain.Counsellor, string, error) {
	c, err := repo.CreateCounsellor(ctx, s.DB, username, email, name)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, "", ErrDuplicateCounsellor
		}
		return nil, "", err
	}

	var magicLink string
	if s.Mode == ModeMulti && s.Chat != nil {
		adminKey, err := s.Chat.GenerateAdminKey(ctx)
		if err == nil {
			magicLink, err = s.Chat.ProvisionCounsellor(ctx, username, email, adminKey)
		}
		if err != nil {
			log.Error().Err(err).Str("counsellor", username).
				Msg("chat app provisioning failed; counsellor registered without account")
		}
	}
	return c, magicLink, nil
}

// Remove deletes a counsellor and their channel bindings. In-flight tickets
// keep their assignment; only future selections are affected.
func (s *RosterService) Remove(ctx context.Context, username string) error {
	if err := repo.DeleteCounsellor(ctx, s.DB, username); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCounsellorNotFound
		}
		return err
	}
	return nil
}

// BindChannel attaches an outbound channel address to a counsellor.
func (s *RosterService) BindChannel(ctx context.Context, username, channel, address string, authKey *string, priority int) error {
	if _, err := repo.GetCounsellor(ctx, s.DB, username); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCounsellorNotFound
		}
		return err
	}
	if err := repo.AddCounsellorChannel(ctx, s.DB, username, channel, address, authKey, priority); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrDuplicateCounsellor
		}
		return err
	}
	return nil
}

// Get fetches a counsellor with channels, or ErrCounsellorNotFound.
func (s *RosterService) Get(ctx context.Context, username string) (*domain.Counsellor, error) {
	c, err := repo.GetCounsellor(ctx, s.DB, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCounsellorNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns the roster in selection order.
func (s *RosterService) List(ctx context.Context) ([]domain.Counsellor, error) {
	return repo.ListCounsellors(ctx, s.DB)
}
