package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
	"github.com/awaa-health/go-counsel-backend/internal/services"
)

// newTestDB opens a private in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

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

// fakeSessions records what the webhook hands to the engine.
type fakeSessions struct {
	inbound []services.Inbound
	err     error
}

func (f *fakeSessions) HandleInbound(_ context.Context, in services.Inbound) error {
	if f.err != nil {
		return f.err
	}
	f.inbound = append(f.inbound, in)
	return nil
}

func newWebhookRouter(t *testing.T, sessions SessionHandler) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewWebhookHandlers(db, sessions, time.Hour)
	r := gin.New()
	r.POST("/hook/messages", h.ReceiveMessages)
	return r, db
}

func postWebhook(t *testing.T, r *gin.Engine, payload string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hook/messages", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func TestReceiveMessages_Batch(t *testing.T) {
	sessions := &fakeSessions{}
	r, _ := newWebhookRouter(t, sessions)

	payload := `{
		"channel": "whatsapp",
		"messages": [
			{"id": "evt-1", "type": "text", "chat_id": "u1", "text": {"body": "hello"}},
			{"id": "evt-2", "type": "text", "chat_id": "u1", "from_me": true, "text": {"body": "echo"}},
			{"id": "evt-3", "type": "sticker", "chat_id": "u1"}
		]
	}`
	code, body := postWebhook(t, r, payload)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["accepted"].(float64) != 1 || body["skipped"].(float64) != 2 || body["failed"].(float64) != 0 {
		t.Fatalf("counts = %v", body)
	}

	if len(sessions.inbound) != 1 {
		t.Fatalf("engine saw %d events", len(sessions.inbound))
	}
	in := sessions.inbound[0]
	if in.UserID != "u1" || in.Text != "hello" || in.Route != "whatsapp" {
		t.Errorf("inbound = %+v", in)
	}
}

func TestReceiveMessages_Dedupe(t *testing.T) {
	sessions := &fakeSessions{}
	r, _ := newWebhookRouter(t, sessions)

	payload := `{"channel": "whatsapp", "messages": [{"id": "evt-1", "type": "text", "chat_id": "u1", "text": {"body": "hello"}}]}`
	if code, body := postWebhook(t, r, payload); code != http.StatusOK || body["accepted"].(float64) != 1 {
		t.Fatalf("first delivery: %d %v", code, body)
	}
	code, body := postWebhook(t, r, payload)
	if code != http.StatusOK || body["skipped"].(float64) != 1 || body["accepted"].(float64) != 0 {
		t.Fatalf("redelivery: %d %v", code, body)
	}
	if len(sessions.inbound) != 1 {
		t.Fatalf("engine saw the duplicate")
	}
}

func TestReceiveMessages_FailureIsIsolated(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("engine down")}
	r, _ := newWebhookRouter(t, sessions)

	payload := `{"channel": "whatsapp", "messages": [{"id": "evt-1", "type": "text", "chat_id": "u1", "text": {"body": "hello"}}]}`
	code, body := postWebhook(t, r, payload)
	if code != http.StatusOK {
		t.Fatalf("status = %d, the gateway must not retry the whole batch", code)
	}
	if body["failed"].(float64) != 1 {
		t.Fatalf("counts = %v", body)
	}
}

func TestReceiveMessages_BadPayload(t *testing.T) {
	r, _ := newWebhookRouter(t, &fakeSessions{})
	code, _ := postWebhook(t, r, `{"messages": "nope"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d", code)
	}
}

func TestNormalizeEvent(t *testing.T) {
	text := func(s string) *struct {
		Body string `json:"body"`
	} {
		return &struct {
			Body string `json:"body"`
		}{Body: s}
	}

	cases := []struct {
		name   string
		msg    webhookMessage
		want   services.Inbound
		wantOK bool
	}{
		{
			name:   "text",
			msg:    webhookMessage{ID: "e1", Type: "text", ChatID: "u1", Text: text("hello")},
			want:   services.Inbound{UserID: "u1", Text: "hello", Route: "whatsapp"},
			wantOK: true,
		},
		{
			name: "from falls back when chat_id is empty",
			msg:  webhookMessage{ID: "e2", Type: "text", From: "u2", Text: text("hi")},
			want: services.Inbound{UserID: "u2", Text: "hi", Route: "whatsapp"}, wantOK: true,
		},
		{
			name: "button reply carries the structured id",
			msg: webhookMessage{ID: "e3", Type: "reply", ChatID: "u1", Reply: &webhookReply{
				Type: "buttons_reply",
				ButtonsReply: &struct {
					ID    string `json:"id"`
					Title string `json:"title"`
				}{ID: "lang:fr", Title: "Français"},
			}},
			want:   services.Inbound{UserID: "u1", Text: "Français", StructuredID: "lang:fr", Route: "whatsapp"},
			wantOK: true,
		},
		{
			name: "list reply",
			msg: webhookMessage{ID: "e4", Type: "reply", ChatID: "u1", Reply: &webhookReply{
				Type: "list_reply",
				ListReply: &struct {
					ID    string `json:"id"`
					Title string `json:"title"`
				}{ID: "opt:2", Title: "Male"},
			}},
			want:   services.Inbound{UserID: "u1", Text: "Male", StructuredID: "opt:2", Route: "whatsapp"},
			wantOK: true,
		},
		{
			name: "image caption",
			msg: webhookMessage{ID: "e5", Type: "image", ChatID: "u1", Image: &struct {
				Caption string `json:"caption"`
			}{Caption: "what is this?"}},
			want:   services.Inbound{UserID: "u1", Text: "what is this?", Route: "whatsapp"},
			wantOK: true,
		},
		{
			name: "document falls back to filename",
			msg: webhookMessage{ID: "e6", Type: "document", ChatID: "u1", Document: &struct {
				Filename string `json:"filename"`
				Caption  string `json:"caption"`
			}{Filename: "results.pdf"}},
			want:   services.Inbound{UserID: "u1", Text: "results.pdf", Route: "whatsapp"},
			wantOK: true,
		},
		{
			name:   "bot echo",
			msg:    webhookMessage{ID: "e7", Type: "text", ChatID: "u1", FromMe: true, Text: text("echo")},
			wantOK: false,
		},
		{
			name:   "unknown type",
			msg:    webhookMessage{ID: "e8", Type: "sticker", ChatID: "u1"},
			wantOK: false,
		},
		{
			name:   "no sender",
			msg:    webhookMessage{ID: "e9", Type: "text", Text: text("hello")},
			wantOK: false,
		},
		{
			name:   "captionless image",
			msg:    webhookMessage{ID: "e10", Type: "image", ChatID: "u1"},
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, okEv := normalizeEvent(tc.msg, "whatsapp")
			if okEv != tc.wantOK {
				t.Fatalf("ok = %v, want %v", okEv, tc.wantOK)
			}
			if okEv && got != tc.want {
				t.Errorf("inbound = %+v, want %+v", got, tc.want)
			}
		})
	}
}
