// Package domain defines the persistence models for users, tickets,
// counsellors, and the append-only message log. These types are mapped with
// GORM and form the core data layer of the counselling bot.
package domain

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// HandlerState identifies which part of the engine currently owns a user's
// conversation. It is stored as a string column and validated against the
// closed set below on insert; update paths check it explicitly.
type HandlerState string

const (
	// HandlerNew marks a user that has just sent their first message.
	HandlerNew HandlerState = "new"
	// HandlerLanguageSelecting marks a user who has been greeted and must
	// pick a conversation language.
	HandlerLanguageSelecting HandlerState = "language_selecting"
	// HandlerOnboarding marks a user working through the intake questions.
	HandlerOnboarding HandlerState = "onboarding"
	// HandlerAIAssisted marks a user in normal automated conversation.
	HandlerAIAssisted HandlerState = "ai_assisted"
	// HandlerEscalated marks a user whose conversation has been handed to
	// a human counsellor.
	HandlerEscalated HandlerState = "escalated"
)

// Valid reports whether h is one of the known handler states.
func (h HandlerState) Valid() bool {
	switch h {
	case HandlerNew, HandlerLanguageSelecting, HandlerOnboarding, HandlerAIAssisted, HandlerEscalated:
		return true
	}
	return false
}

// ErrInvalidHandler is returned when a user row carries a handler value
// outside the known state set.
var ErrInvalidHandler = fmt.Errorf("invalid handler state")

// User represents an end user identified by their opaque channel address
// (e.g. a WhatsApp JID). The handler column drives the per-user state
// machine; OnboardingKey is the cursor into the intake question set and is
// non-null only while the user is onboarding.
//
// Fields:
//   - ID: channel address, primary key.
//   - Handler: current state machine owner (see HandlerState).
//   - Language: ISO 639-1 code, set during language selection.
//   - OnboardingKey: cursor into the question set (nullable).
//   - AuthToken: chat-app token, provisioned lazily on escalation.
//   - Age / Gender / Location: profile fields filled by onboarding answers.
type User struct {
	ID            string       `json:"id"             gorm:"type:varchar(128);primaryKey"`
	Handler       HandlerState `json:"handler"        gorm:"type:varchar(32);not null;default:'new';index"`
	Language      *string      `json:"language"       gorm:"type:varchar(8)"`
	OnboardingKey *string      `json:"onboarding_key" gorm:"type:varchar(64)"`
	AuthToken     *string      `json:"-"              gorm:"type:varchar(512)"`
	Age           *int         `json:"age,omitempty"`
	Gender        *string      `json:"gender,omitempty"   gorm:"type:varchar(32)"`
	Location      *string      `json:"location,omitempty" gorm:"type:varchar(128)"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// BeforeCreate rejects handler values outside the closed state set. This is
// a create hook, not a save hook: GORM runs save hooks on map-based Updates
// too, where the model destination is zero-valued and the check would reject
// every column update. Handler changes go through UpdateUserHandler, which
// validates the new state itself.
func (u *User) BeforeCreate(*gorm.DB) error {
	if !u.Handler.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidHandler, u.Handler)
	}
	return nil
}

// Ticket status values.
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketClosed     = "closed"
)

// Ticket represents a support ticket raised when a conversation is escalated
// to a human counsellor. The ticket ID is a deterministic function of the
// owning user ("00T" + user ID), so re-escalating a user reuses the same row.
//
// Fields:
//   - ID: "00T<user id>".
//   - UserID: owning user's channel address.
//   - Status: open | in_progress | closed.
//   - Handler: assigned counsellor username (nullable until assignment).
//   - Transcript: conversation snapshot taken at creation time.
type Ticket struct {
	ID         string     `json:"id"         gorm:"type:varchar(160);primaryKey"`
	UserID     string     `json:"user_id"    gorm:"type:varchar(128);not null;index"`
	Status     string     `json:"status"     gorm:"type:varchar(16);not null;default:'open';check:status IN ('open','in_progress','closed');index"`
	Handler    *string    `json:"handler"    gorm:"type:varchar(64)"`
	Transcript string     `json:"transcript" gorm:"type:text"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// TableName returns the database table name for Ticket.
func (Ticket) TableName() string { return "tickets" }

// TicketAssignment is an append-only audit record of a counsellor being
// assigned to a ticket. Rows are written once and never mutated.
type TicketAssignment struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TicketID   string    `json:"ticket_id"  gorm:"type:varchar(160);not null;index"`
	Counsellor string    `json:"counsellor" gorm:"type:varchar(64);not null;index"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for TicketAssignment.
func (TicketAssignment) TableName() string { return "ticket_assignments" }

// Message is a single entry in the append-only message log. Ordering by
// CreatedAt reconstructs a transcript; the log is the sole source for ticket
// transcripts and for the history fed to the reply generator.
//
// Fields:
//   - From / To: channel addresses, or the bot identity for outbound sends.
//   - Type: platform message type (text, reply, image, ...).
//   - Content: normalized text body.
//   - Source: originating platform ("whatsapp", "web", ...).
type Message struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	From      string    `json:"from"    gorm:"column:from_id;type:varchar(128);not null;index:idx_msgs_from,priority:1"`
	To        string    `json:"to"      gorm:"column:to_id;type:varchar(128);not null;index"`
	Type      string    `json:"type"    gorm:"type:varchar(32);not null;default:'text'"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Source    string    `json:"source"  gorm:"type:varchar(32)"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_msgs_from,priority:2"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Counsellor is a human agent who can receive escalated conversations.
// Channels are ordered by priority; the first one is used for direct
// notifications in single-counsellor deployments.
type Counsellor struct {
	Username  string              `json:"username" gorm:"type:varchar(64);primaryKey"`
	Email     string              `json:"email"    gorm:"type:varchar(128);not null"`
	Name      string              `json:"name"     gorm:"type:varchar(128)"`
	Channels  []CounsellorChannel `json:"channels" gorm:"foreignKey:Counsellor;references:Username;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// TableName returns the database table name for Counsellor.
func (Counsellor) TableName() string { return "counsellors" }

// CounsellorChannel binds a counsellor to an outbound channel: the channel
// type ("whatsapp", "chat_app"), the address messages are sent to, an
// optional auth key, and a priority rank (lower is preferred).
type CounsellorChannel struct {
	ID         uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	Counsellor string    `json:"counsellor" gorm:"type:varchar(64);not null;uniqueIndex:ux_counsellor_channel,priority:1"`
	Channel    string    `json:"channel"    gorm:"type:varchar(32);not null;uniqueIndex:ux_counsellor_channel,priority:2"`
	Address    string    `json:"address"    gorm:"type:varchar(128);not null"`
	AuthKey    *string   `json:"-"          gorm:"type:varchar(512)"`
	Priority   int       `json:"priority"   gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for CounsellorChannel.
func (CounsellorChannel) TableName() string { return "counsellor_channels" }
