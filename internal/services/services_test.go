package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/awaa-health/go-counsel-backend/internal/delivery"
	"github.com/awaa-health/go-counsel-backend/internal/domain"
)

// newTestDB opens a private in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Message{},
		&domain.Ticket{},
		&domain.TicketAssignment{},
		&domain.Counsellor{},
		&domain.CounsellorChannel{},
		&domain.ProcessedEvent{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// sentMessage is one captured outbound send.
type sentMessage struct {
	Route     string
	Recipient string
	Body      string
	Options   []string
}

// fakeSender records sends and can be told to fail.
type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendText(_ context.Context, route, recipient, body string) (*delivery.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sentMessage{Route: route, Recipient: recipient, Body: body})
	return &delivery.Result{Sent: true}, nil
}

func (f *fakeSender) SendOptions(_ context.Context, route, recipient, body string, options []string) (*delivery.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sentMessage{Route: route, Recipient: recipient, Body: body, Options: options})
	return &delivery.Result{Sent: true}, nil
}

// last returns the most recent send, failing the test when there is none.
func (f *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatalf("no message was sent")
	}
	return f.sent[len(f.sent)-1]
}

// fakeClassifier returns a fixed verdict and records the texts it saw.
type fakeClassifier struct {
	label      string
	confidence float64
	err        error
	calls      []string
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (string, float64, error) {
	f.calls = append(f.calls, text)
	return f.label, f.confidence, f.err
}

// fakeGenerator echoes a canned reply.
type fakeGenerator struct {
	reply   string
	err     error
	lastMsg string
	history string
}

func (f *fakeGenerator) Generate(_ context.Context, message, history string) (string, error) {
	f.lastMsg, f.history = message, history
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// fakeChat is an in-memory chat app: rooms exist once created, tokens are
// deterministic, and every posted message is recorded per room.
type fakeChat struct {
	rooms       map[string][]string
	provisioned []string
	adminErr    error
}

func newFakeChat() *fakeChat {
	return &fakeChat{rooms: map[string][]string{}}
}

func (f *fakeChat) CreateUserToken(_ context.Context, userID string) (string, error) {
	return "tok-" + userID, nil
}

func (f *fakeChat) CreateRoom(_ context.Context, userID, counsellorID, _ string) (string, error) {
	slug := "wa_" + userID + "_" + counsellorID
	if _, ok := f.rooms[slug]; !ok {
		f.rooms[slug] = nil
	}
	return slug, nil
}

func (f *fakeChat) JoinRoom(_ context.Context, roomSlug, _ string) error {
	if _, ok := f.rooms[roomSlug]; !ok {
		return errors.New("room not found")
	}
	return nil
}

func (f *fakeChat) RoomExists(_ context.Context, slug, _ string) (bool, error) {
	_, ok := f.rooms[slug]
	return ok, nil
}

func (f *fakeChat) SendMessage(_ context.Context, roomSlug, message, _ string) error {
	if _, ok := f.rooms[roomSlug]; !ok {
		return errors.New("room not found")
	}
	f.rooms[roomSlug] = append(f.rooms[roomSlug], message)
	return nil
}

func (f *fakeChat) GenerateAdminKey(_ context.Context) (string, error) {
	if f.adminErr != nil {
		return "", f.adminErr
	}
	return "admin-key", nil
}

func (f *fakeChat) ProvisionCounsellor(_ context.Context, username, _, _ string) (string, error) {
	f.provisioned = append(f.provisioned, username)
	return "https://chat.example.org/magic/" + username, nil
}

func strp(s string) *string { return &s }
