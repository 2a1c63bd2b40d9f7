// Package services – SessionService
//
// This file implements the per-user conversation state machine. Every
// inbound message is dispatched on the user's handler state: new users are
// greeted and asked for a language, onboarding users work through the
// intake questions, AI-assisted users get generated answers unless the
// escalation check trips, and escalated users are relayed to their
// counsellor. Messages arriving from counsellor channel addresses bypass
// the state machine entirely and are relayed to the user of the
// counsellor's active ticket.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/ai"
	"github.com/awaa-health/go-counsel-backend/internal/crisis"
	"github.com/awaa-health/go-counsel-backend/internal/domain"
	"github.com/awaa-health/go-counsel-backend/internal/i18n"
	"github.com/awaa-health/go-counsel-backend/internal/language"
	"github.com/awaa-health/go-counsel-backend/internal/questions"
	"github.com/awaa-health/go-counsel-backend/internal/repo"
)

// Inbound is one normalized incoming message event.
type Inbound struct {
	// UserID is the sender's channel address.
	UserID string
	// Text is the message body (caption for media, label for button taps).
	Text string
	// StructuredID carries an interactive reply id when the platform sent
	// one (button or list selection); empty for plain text.
	StructuredID string
	// Route names the gateway the message arrived on; replies go back
	// through it.
	Route string
}

// SessionService drives the conversation state machine.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Bot sends bot-authored messages and records them in the log.
	Bot MessageSender
	// Relay sends counsellor-authored messages without logging them as
	// bot output; the relay path records them itself.
	Relay MessageSender
	// Questions is the intake questionnaire.
	Questions *questions.Set
	// Languages resolves the user's conversation language.
	Languages *language.Resolver
	// Escalation decides when a message must reach a human.
	Escalation *EscalationService
	// Tickets manages escalations and counsellor relays.
	Tickets *TicketService
	// Generator produces AI answers for assisted conversations.
	Generator ai.Generator

	// BotID is the identity inbound messages are logged against.
	BotID string
	// DefaultRoute is used when an event does not name its gateway.
	DefaultRoute string
	// HistoryLimit caps the context window handed to the generator.
	HistoryLimit int
}

// NewSessionService wires the state machine with its collaborators.
func NewSessionService(db *gorm.DB, bot, relay MessageSender, qs *questions.Set, langs *language.Resolver, esc *EscalationService, tickets *TicketService, gen ai.Generator) *SessionService {
	return &SessionService{
		DB:           db,
		Bot:          bot,
		Relay:        relay,
		Questions:    qs,
		Languages:    langs,
		Escalation:   esc,
		Tickets:      tickets,
		Generator:    gen,
		BotID:        "ai_bot",
		HistoryLimit: 20,
	}
}

// HandleInbound processes one incoming message end to end. Failures to
// deliver the reply are returned; the state transition that preceded them
// is already durable, so a redelivered webhook resumes from the new state.
func (s *SessionService) HandleInbound(ctx context.Context, in Inbound) error {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" && in.StructuredID == "" {
		return ErrEmptyMessage
	}
	if in.Route == "" {
		in.Route = s.DefaultRoute
	}

	// Counsellors write in on the same webhook as users; recognize them by
	// channel address and relay instead of running the state machine.
	if ch, err := repo.FindCounsellorByAddress(ctx, s.DB, in.UserID); err == nil {
		return s.handleCounsellorMessage(ctx, in, ch.Counsellor)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	user, err := repo.GetUser(ctx, s.DB, in.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if user, err = repo.CreateUser(ctx, s.DB, in.UserID); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if _, err := repo.AppendMessage(ctx, s.DB, in.UserID, s.BotID, "text", in.Text, "user"); err != nil {
		return err
	}

	switch user.Handler {
	case domain.HandlerNew:
		return s.greet(ctx, in, user)
	case domain.HandlerLanguageSelecting:
		return s.handleLanguageChoice(ctx, in, user)
	case domain.HandlerOnboarding:
		return s.handleOnboarding(ctx, in, user)
	case domain.HandlerAIAssisted:
		return s.handleAssisted(ctx, in, user)
	case domain.HandlerEscalated:
		return s.handleEscalated(ctx, in, user)
	default:
		return domain.ErrInvalidHandler
	}
}

// greet welcomes a first-time user and asks for their language. The greeting
// itself goes out in whatever language the first message looks like, since
// nothing has been asked yet.
func (s *SessionService) greet(ctx context.Context, in Inbound, user *domain.User) error {
	lang := s.Languages.Detect(in.Text)
	if _, err := s.Bot.SendText(ctx, in.Route, user.ID, i18n.T(i18n.Greeting, lang)); err != nil {
		return err
	}
	if err := repo.UpdateUserHandler(ctx, s.DB, user.ID, domain.HandlerLanguageSelecting, nil); err != nil {
		return err
	}
	_, err := s.Bot.SendOptions(ctx, in.Route, user.ID, i18n.T(i18n.LanguagePrompt, lang), []string{"English", "Français"})
	return err
}

// handleLanguageChoice resolves the chosen language, re-greets in it, and
// starts onboarding. An unrecognized answer re-asks; the state does not
// advance.
func (s *SessionService) handleLanguageChoice(ctx context.Context, in Inbound, user *domain.User) error {
	lang := s.Languages.Resolve(in.StructuredID, in.Text)
	if lang == "" {
		_, err := s.Bot.SendOptions(ctx, in.Route, user.ID, i18n.T(i18n.LanguagePrompt, s.Languages.Default()), []string{"English", "Français"})
		return err
	}
	if err := repo.UpdateUserField(ctx, s.DB, user.ID, "language", lang); err != nil {
		return err
	}
	first := s.Questions.First()
	if err := repo.UpdateUserHandler(ctx, s.DB, user.ID, domain.HandlerOnboarding, &first); err != nil {
		return err
	}
	if _, err := s.Bot.SendText(ctx, in.Route, user.ID, i18n.T(i18n.Greeting, lang)); err != nil {
		return err
	}
	if _, err := s.Bot.SendText(ctx, in.Route, user.ID, i18n.T(i18n.OnboardingIntro, lang)); err != nil {
		return err
	}
	return s.askQuestion(ctx, in, user.ID, first, lang)
}

// handleOnboarding validates the answer to the current question and either
// re-asks it or advances the cursor. An invalid answer leaves the cursor in
// place, so a retried delivery of the same answer is harmless.
func (s *SessionService) handleOnboarding(ctx context.Context, in Inbound, user *domain.User) error {
	lang := s.langOf(user)

	key := ""
	if user.OnboardingKey != nil {
		key = *user.OnboardingKey
	}
	if _, ok := s.Questions.Get(key); !ok {
		// Cursor lost or stale after a question-set change; restart.
		key = s.Questions.First()
		if err := repo.UpdateUserHandler(ctx, s.DB, user.ID, domain.HandlerOnboarding, &key); err != nil {
			return err
		}
		return s.askQuestion(ctx, in, user.ID, key, lang)
	}

	res := s.Questions.Validate(in.Text, key, lang)
	if !res.OK {
		if _, err := s.Bot.SendText(ctx, in.Route, user.ID, res.Error); err != nil {
			return err
		}
		return s.askQuestion(ctx, in, user.ID, key, lang)
	}
	if !res.Skipped && res.Value != nil {
		if err := s.storeAnswer(ctx, user.ID, key, *res.Value); err != nil {
			return err
		}
	}

	next := s.Questions.Next(key)
	if next == questions.Done {
		if err := repo.UpdateUserHandler(ctx, s.DB, user.ID, domain.HandlerAIAssisted, nil); err != nil {
			return err
		}
		_, err := s.Bot.SendText(ctx, in.Route, user.ID, i18n.T(i18n.OnboardingComplete, lang))
		return err
	}
	if err := repo.UpdateUserHandler(ctx, s.DB, user.ID, domain.HandlerOnboarding, &next); err != nil {
		return err
	}
	return s.askQuestion(ctx, in, user.ID, next, lang)
}

// handleAssisted runs the escalation check, then either hands the user to a
// counsellor or answers with the generator. Generation failures apologize
// and keep the user in the assisted state.
func (s *SessionService) handleAssisted(ctx context.Context, in Inbound, user *domain.User) error {
	lang := s.langOf(user)

	decision := s.Escalation.Check(ctx, in.Text)
	if decision.Escalate {
		// Ticket and state change first. The webhook has already marked
		// this event processed, so a notice that fails to deliver must not
		// take the escalation down with it.
		_, counsellor, err := s.Tickets.Escalate(ctx, user)
		if err != nil {
			return err
		}
		notice := i18n.T(i18n.EscalationNotice, lang)
		if decision.CrisisHit {
			notice = crisis.Response(decision.Crisis, lang)
		}
		if _, err := s.Bot.SendText(ctx, in.Route, user.ID, notice); err != nil {
			return err
		}
		if counsellor == nil {
			_, err := s.Bot.SendText(ctx, in.Route, user.ID, i18n.T(i18n.NoCounsellor, lang))
			return err
		}
		return nil
	}

	history, err := repo.ListMessagesForUser(ctx, s.DB, user.ID, s.HistoryLimit)
	if err != nil {
		return err
	}
	reply, err := s.Generator.Generate(ctx, in.Text, ai.RenderHistory(history))
	if err != nil {
		log.Error().Err(err).Str("user", user.ID).Msg("answer generation failed")
		_, err = s.Bot.SendText(ctx, in.Route, user.ID, i18n.T(i18n.GenerationFailure, lang))
		return err
	}
	_, err = s.Bot.SendText(ctx, in.Route, user.ID, reply)
	return err
}

// handleEscalated forwards the user's message to their counsellor. If the
// ticket has vanished or never got an assignee, the user is reassured and
// the message stays in the log for the counsellor to catch up on.
func (s *SessionService) handleEscalated(ctx context.Context, in Inbound, user *domain.User) error {
	err := s.Tickets.RelayToCounsellor(ctx, user, in.Text)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTicketNotFound) || errors.Is(err, ErrNoCounsellors) {
		log.Warn().Err(err).Str("user", user.ID).Msg("escalated user has no reachable counsellor")
		_, err = s.Bot.SendText(ctx, in.Route, user.ID, i18n.T(i18n.NoCounsellor, s.langOf(user)))
	}
	return err
}

// handleCounsellorMessage relays a counsellor's reply to the user of their
// active ticket.
func (s *SessionService) handleCounsellorMessage(ctx context.Context, in Inbound, counsellor string) error {
	ticket, err := repo.ActiveTicketForCounsellor(ctx, s.DB, counsellor)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().Str("counsellor", counsellor).Msg("counsellor message with no active ticket; dropped")
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := repo.AppendMessage(ctx, s.DB, counsellor, ticket.UserID, "text", in.Text, "counsellor"); err != nil {
		return err
	}
	_, err = s.Relay.SendText(ctx, in.Route, ticket.UserID, in.Text)
	return err
}

// askQuestion renders and sends one questionnaire step.
func (s *SessionService) askQuestion(ctx context.Context, in Inbound, userID, key, lang string) error {
	prompt, opts, err := s.Questions.Render(key, lang)
	if err != nil {
		return err
	}
	if len(opts) > 0 {
		_, err = s.Bot.SendOptions(ctx, in.Route, userID, prompt, opts)
		return err
	}
	_, err = s.Bot.SendText(ctx, in.Route, userID, prompt)
	return err
}

// storeAnswer persists a validated answer into the user's profile column,
// converting numeric answers so the column type is respected.
func (s *SessionService) storeAnswer(ctx context.Context, userID, key, value string) error {
	q, ok := s.Questions.Get(key)
	if !ok || q.Field == "" {
		return nil
	}
	var v any = value
	if q.Constraint.Kind == questions.KindNumber {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		v = n
	}
	return repo.UpdateUserField(ctx, s.DB, userID, q.Field, v)
}

// langOf returns the user's chosen language, or the deployment default.
func (s *SessionService) langOf(user *domain.User) string {
	if user.Language != nil && *user.Language != "" {
		return *user.Language
	}
	return s.Languages.Default()
}
