// Package delivery – PersistingSender
//
// Wraps a Sender so every successfully delivered message is appended to the
// message log under the bot identity. Persistence failures never fail the
// send (the user already has the message); they only cost the log entry.
package delivery

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/repo"
)

// PersistingSender decorates Sender with message-log appends.
type PersistingSender struct {
	*Sender
	db    *gorm.DB
	botID string
}

// NewPersistingSender wraps sender; botID is the "from" identity recorded
// for outbound messages.
func NewPersistingSender(sender *Sender, db *gorm.DB, botID string) *PersistingSender {
	if botID == "" {
		botID = "ai_bot"
	}
	return &PersistingSender{Sender: sender, db: db, botID: botID}
}

// SendText delivers a text body and logs it on success.
func (p *PersistingSender) SendText(ctx context.Context, route, recipient, body string) (*Result, error) {
	res, err := p.Sender.SendText(ctx, route, recipient, body)
	if err != nil {
		return nil, err
	}
	p.logSent(ctx, recipient, KindText, body)
	return res, nil
}

// SendOptions delivers an option message and logs its body on success.
func (p *PersistingSender) SendOptions(ctx context.Context, route, recipient, body string, options []string) (*Result, error) {
	res, err := p.Sender.SendOptions(ctx, route, recipient, body, options)
	if err != nil {
		return nil, err
	}
	p.logSent(ctx, recipient, KindOptions, body)
	return res, nil
}

func (p *PersistingSender) logSent(ctx context.Context, recipient, kind, body string) {
	if _, err := repo.AppendMessage(ctx, p.db, p.botID, recipient, kind, body, "bot"); err != nil {
		log.Error().Err(err).Str("to", recipient).Msg("sent message not recorded in log")
	}
}
