// Webhook HTTP handler.
//
// This file receives the messaging gateway's webhook:
//   - POST /hook/messages (batch of inbound message events)
//
// The handler is transport-thin: it normalizes each platform event into an
// engine Inbound (extracting the usable text from text bodies, button and
// list replies, media captions, and document filenames), deduplicates on the
// platform message id, and hands the result to the session service. Bot-echo
// events (from_me) and unknown event types are skipped.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/http/middleware"
	"github.com/awaa-health/go-counsel-backend/internal/repo"
	"github.com/awaa-health/go-counsel-backend/internal/services"
)

// SessionHandler is the engine contract the webhook needs.
type SessionHandler interface {
	HandleInbound(ctx context.Context, in services.Inbound) error
}

// WebhookHandlers processes inbound gateway events.
type WebhookHandlers struct {
	db       *gorm.DB
	sessions SessionHandler
	eventTTL time.Duration
}

// NewWebhookHandlers constructs webhook handlers. eventTTL bounds how long
// processed event ids are remembered for deduplication.
func NewWebhookHandlers(db *gorm.DB, sessions SessionHandler, eventTTL time.Duration) *WebhookHandlers {
	return &WebhookHandlers{db: db, sessions: sessions, eventTTL: eventTTL}
}

// webhookReply mirrors the gateway's interactive reply object.
type webhookReply struct {
	Type         string `json:"type"`
	ButtonsReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"buttons_reply"`
	ListReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"list_reply"`
}

// webhookMessage mirrors one gateway message event.
type webhookMessage struct {
	ID     string `json:"id"`
	FromMe bool   `json:"from_me"`
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	From   string `json:"from"`
	Text   *struct {
		Body string `json:"body"`
	} `json:"text"`
	Reply       *webhookReply `json:"reply"`
	Interactive *struct {
		Body string `json:"body"`
	} `json:"interactive"`
	Image *struct {
		Caption string `json:"caption"`
	} `json:"image"`
	Video *struct {
		Caption string `json:"caption"`
	} `json:"video"`
	Document *struct {
		Filename string `json:"filename"`
		Caption  string `json:"caption"`
	} `json:"document"`
}

// webhookRequest is the batch envelope posted by the gateway.
type webhookRequest struct {
	Channel  string           `json:"channel"`
	Messages []webhookMessage `json:"messages"`
}

// ReceiveMessages handles POST /hook/messages.
//
// Each event is deduplicated and processed independently: one bad event does
// not block the rest of the batch, and a processing failure is logged rather
// than surfaced, because the gateway's redelivery would be dropped by the
// dedupe anyway. The response reports how many events were accepted, skipped,
// and failed.
func (h *WebhookHandlers) ReceiveMessages(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid webhook payload")
		return
	}

	lg := middleware.LoggerFrom(c)
	var accepted, skipped, failed int
	for _, m := range req.Messages {
		in, ok := normalizeEvent(m, req.Channel)
		if !ok {
			skipped++
			continue
		}
		if err := repo.MarkEventProcessed(c.Request.Context(), h.db, m.ID, in.UserID, h.eventTTL); err != nil {
			if errors.Is(err, repo.ErrDuplicateEvent) {
				skipped++
				continue
			}
			failed++
			lg.Error().Err(err).Str("event", m.ID).Msg("event dedupe write failed")
			continue
		}
		if err := h.sessions.HandleInbound(c.Request.Context(), in); err != nil {
			failed++
			lg.Error().Err(err).Str("event", m.ID).Str("user", in.UserID).Msg("inbound message not handled")
			continue
		}
		accepted++
	}

	ok(c, http.StatusOK, gin.H{"accepted": accepted, "skipped": skipped, "failed": failed})
}

// normalizeEvent turns a gateway event into an engine Inbound.
// Returns ok=false for events the engine must not see: bot echoes, unknown
// types, and events with no sender or usable content.
func normalizeEvent(m webhookMessage, channel string) (services.Inbound, bool) {
	if m.FromMe {
		return services.Inbound{}, false
	}
	userID := m.ChatID
	if userID == "" {
		userID = m.From
	}
	if userID == "" {
		return services.Inbound{}, false
	}

	in := services.Inbound{UserID: userID, Route: channel}
	switch strings.ToLower(strings.TrimSpace(m.Type)) {
	case "text":
		if m.Text != nil {
			in.Text = m.Text.Body
		}
	case "reply":
		if m.Reply == nil {
			return services.Inbound{}, false
		}
		switch {
		case m.Reply.ButtonsReply != nil:
			in.Text = m.Reply.ButtonsReply.Title
			in.StructuredID = m.Reply.ButtonsReply.ID
		case m.Reply.ListReply != nil:
			in.Text = m.Reply.ListReply.Title
			in.StructuredID = m.Reply.ListReply.ID
		default:
			return services.Inbound{}, false
		}
	case "interactive":
		if m.Interactive != nil {
			in.Text = m.Interactive.Body
		}
	case "image":
		if m.Image != nil {
			in.Text = m.Image.Caption
		}
	case "video":
		if m.Video != nil {
			in.Text = m.Video.Caption
		}
	case "document":
		if m.Document != nil {
			in.Text = m.Document.Caption
			if in.Text == "" {
				in.Text = m.Document.Filename
			}
		}
	default:
		return services.Inbound{}, false
	}

	if strings.TrimSpace(in.Text) == "" && in.StructuredID == "" {
		return services.Inbound{}, false
	}
	return in, true
}
