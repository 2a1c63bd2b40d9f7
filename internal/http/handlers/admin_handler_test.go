package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
	"github.com/awaa-health/go-counsel-backend/internal/http/middleware"
	"github.com/awaa-health/go-counsel-backend/internal/repo"
	"github.com/awaa-health/go-counsel-backend/internal/services"
)

type adminFixture struct {
	db      *gorm.DB
	router  *gin.Engine
	tickets *services.TicketService
	roster  *services.RosterService
}

// newAdminFixture wires the admin endpoints over real services and an
// in-memory database, with the same idempotency middleware the router uses.
func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)

	roster := services.NewRosterService(db, nil, services.ModeSingle)
	tickets := services.NewTicketService(db, roster, nil, nil, services.ModeNone)
	h := NewAdminHandlers(db, tickets, roster, time.Hour)

	lookup := func(ctx context.Context, _, scope, key string, _ time.Time) (bool, error) {
		return repo.EventSeen(ctx, db, "idem:"+scope+":"+key)
	}

	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, lookup))
	r.GET("/users", h.ListUsers)
	r.GET("/users/:id", h.GetUser)
	r.GET("/users/:id/messages", h.ListUserMessages)
	r.GET("/tickets", h.ListTickets)
	r.GET("/tickets/:id", h.GetTicket)
	r.PUT("/tickets/:id/status", h.UpdateTicketStatus)
	r.GET("/counsellors", h.ListCounsellors)
	r.POST("/counsellors", h.CreateCounsellor)
	r.GET("/counsellors/:username", h.GetCounsellor)
	r.DELETE("/counsellors/:username", h.DeleteCounsellor)
	r.POST("/counsellors/:username/channels", h.BindCounsellorChannel)
	r.GET("/stats", h.GetStats)

	return &adminFixture{db: db, router: r, tickets: tickets, roster: roster}
}

func (f *adminFixture) do(t *testing.T, method, path, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	f.router.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestCreateCounsellor(t *testing.T) {
	f := newAdminFixture(t)

	code, body := f.do(t, http.MethodPost, "/counsellors", `{"username": "alice", "email": "a@example.org"}`, nil)
	if code != http.StatusCreated {
		t.Fatalf("status = %d, body %v", code, body)
	}
	counsellor := body["counsellor"].(map[string]any)
	if counsellor["username"] != "alice" {
		t.Errorf("counsellor = %v", counsellor)
	}

	code, body = f.do(t, http.MethodPost, "/counsellors", `{"username": "alice", "email": "a@example.org"}`, nil)
	if code != http.StatusConflict || body["code"] != ErrCodeConflict {
		t.Fatalf("duplicate = %d, %v", code, body)
	}

	code, _ = f.do(t, http.MethodPost, "/counsellors", `{"username": "bob"}`, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("missing email = %d", code)
	}
}

func TestCreateCounsellor_IdempotencyReplay(t *testing.T) {
	f := newAdminFixture(t)
	headers := map[string]string{middleware.HeaderIdempotencyKey: "req-42"}

	code, _ := f.do(t, http.MethodPost, "/counsellors", `{"username": "alice", "email": "a@example.org"}`, headers)
	if code != http.StatusCreated {
		t.Fatalf("first request = %d", code)
	}

	// The retried request is served from the existing record, not a 409.
	code, body := f.do(t, http.MethodPost, "/counsellors", `{"username": "alice", "email": "a@example.org"}`, headers)
	if code != http.StatusOK {
		t.Fatalf("replay = %d, %v", code, body)
	}
	if body["counsellor"].(map[string]any)["username"] != "alice" {
		t.Errorf("replay body = %v", body)
	}

	// A different key is a genuinely new request and conflicts.
	code, _ = f.do(t, http.MethodPost, "/counsellors", `{"username": "alice", "email": "a@example.org"}`,
		map[string]string{middleware.HeaderIdempotencyKey: "req-43"})
	if code != http.StatusConflict {
		t.Fatalf("new key = %d", code)
	}
}

func TestCounsellorChannelsAndRemoval(t *testing.T) {
	f := newAdminFixture(t)
	_, _, _ = f.roster.Register(context.Background(), "alice", "a@example.org", "")

	code, _ := f.do(t, http.MethodPost, "/counsellors/alice/channels", `{"channel": "whatsapp", "address": "alice@s.whatsapp.net", "priority": 1}`, nil)
	if code != http.StatusNoContent {
		t.Fatalf("bind = %d", code)
	}
	code, _ = f.do(t, http.MethodPost, "/counsellors/ghost/channels", `{"channel": "whatsapp", "address": "x"}`, nil)
	if code != http.StatusNotFound {
		t.Fatalf("bind to ghost = %d", code)
	}
	code, _ = f.do(t, http.MethodPost, "/counsellors/alice/channels", `{"channel": "whatsapp", "address": "other"}`, nil)
	if code != http.StatusConflict {
		t.Fatalf("duplicate bind = %d", code)
	}

	code, body := f.do(t, http.MethodGet, "/counsellors/alice", "", nil)
	if code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	if chans := body["channels"].([]any); len(chans) != 1 {
		t.Errorf("channels = %v", chans)
	}

	if code, _ := f.do(t, http.MethodDelete, "/counsellors/alice", "", nil); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	if code, _ := f.do(t, http.MethodDelete, "/counsellors/alice", "", nil); code != http.StatusNotFound {
		t.Fatalf("second delete = %d", code)
	}
}

func TestTicketEndpoints(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	user, _ := repo.CreateUser(ctx, f.db, "u1")
	ticket, _, err := f.tickets.Escalate(ctx, user)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	code, body := f.do(t, http.MethodGet, "/tickets", "", nil)
	if code != http.StatusOK || body["total"].(float64) != 1 {
		t.Fatalf("list = %d, %v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/tickets/"+ticket.ID, "", nil)
	if code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	if body["ticket"].(map[string]any)["user_id"] != "u1" {
		t.Errorf("ticket body = %v", body)
	}
	if code, _ := f.do(t, http.MethodGet, "/tickets/00Tnope", "", nil); code != http.StatusNotFound {
		t.Fatalf("missing ticket = %d", code)
	}

	code, _ = f.do(t, http.MethodPut, "/tickets/"+ticket.ID+"/status", `{"status": "resolved"}`, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("invalid status = %d", code)
	}
	code, _ = f.do(t, http.MethodPut, "/tickets/"+ticket.ID+"/status", `{"status": "Closed"}`, nil)
	if code != http.StatusNoContent {
		t.Fatalf("close = %d", code)
	}
	got, _ := repo.GetTicket(ctx, f.db, ticket.ID)
	if got.Status != domain.TicketClosed {
		t.Errorf("status = %q", got.Status)
	}
}

func TestUserEndpoints(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	_, _ = repo.CreateUser(ctx, f.db, "u1")
	_, _ = repo.AppendMessage(ctx, f.db, "u1", "ai_bot", "text", "hello", "user")

	code, body := f.do(t, http.MethodGet, "/users?page=1&page_size=10", "", nil)
	if code != http.StatusOK || body["total"].(float64) != 1 {
		t.Fatalf("list = %d, %v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/users/u1", "", nil)
	if code != http.StatusOK || body["id"] != "u1" {
		t.Fatalf("get = %d, %v", code, body)
	}
	if code, _ := f.do(t, http.MethodGet, "/users/ghost", "", nil); code != http.StatusNotFound {
		t.Fatalf("missing user = %d", code)
	}

	code, body = f.do(t, http.MethodGet, "/users/u1/messages", "", nil)
	if code != http.StatusOK {
		t.Fatalf("messages = %d", code)
	}
	if items := body["items"].([]any); len(items) != 1 {
		t.Errorf("messages = %v", items)
	}
}

func TestGetStats(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	_, _ = repo.CreateUser(ctx, f.db, "u1")
	_, _, _ = f.roster.Register(ctx, "alice", "a@example.org", "")

	code, body := f.do(t, http.MethodGet, "/stats", "", nil)
	if code != http.StatusOK {
		t.Fatalf("stats = %d", code)
	}
	if body["users"].(float64) != 1 || body["counsellors"].(float64) != 1 {
		t.Errorf("stats = %v", body)
	}
}
