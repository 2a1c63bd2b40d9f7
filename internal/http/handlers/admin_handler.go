// Admin HTTP handlers.
//
// This file exposes the operational REST API used by the dashboard:
//   - GET    /users                         (list, paginated)
//   - GET    /users/{id}                    (profile)
//   - GET    /users/{id}/messages           (conversation log)
//   - GET    /tickets                       (list, paginated)
//   - GET    /tickets/{id}                  (ticket + assignment history)
//   - PUT    /tickets/{id}/status           (transition)
//   - GET    /counsellors                   (roster)
//   - POST   /counsellors                   (register)
//   - GET    /counsellors/{username}        (detail with channels)
//   - DELETE /counsellors/{username}        (remove)
//   - POST   /counsellors/{username}/channels (bind outbound channel)
//   - GET    /stats                         (system counters)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
	"github.com/awaa-health/go-counsel-backend/internal/http/middleware"
	"github.com/awaa-health/go-counsel-backend/internal/repo"
	"github.com/awaa-health/go-counsel-backend/internal/services"
	"github.com/awaa-health/go-counsel-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// TicketService defines ticket lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TicketService interface {
	// Get returns a ticket and its assignment history.
	Get(ctx context.Context, ticketID string) (*domain.Ticket, []domain.TicketAssignment, error)
	// ListPage returns a page of tickets and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Ticket, int64, error)
	// SetStatus transitions a ticket's status.
	SetStatus(ctx context.Context, ticketID, status string) error
}

// RosterService defines counsellor roster operations consumed by HTTP handlers.
type RosterService interface {
	// Register adds a counsellor, returning the chat-app magic link when
	// one was provisioned.
	Register(ctx context.Context, username, email, name string) (*domain.Counsellor, string, error)
	// Remove deletes a counsellor from the roster.
	Remove(ctx context.Context, username string) error
	// BindChannel attaches an outbound channel address to a counsellor.
	BindChannel(ctx context.Context, username, channel, address string, authKey *string, priority int) error
	// Get fetches a counsellor with their channels.
	Get(ctx context.Context, username string) (*domain.Counsellor, error)
	// List returns the roster in selection order.
	List(ctx context.Context) ([]domain.Counsellor, error)
}

//
// Handler wiring
//

// AdminHandlers groups the dashboard endpoints for users, tickets,
// counsellors, and system stats. It depends on abstract service interfaces
// to keep transport concerns separate from business logic.
type AdminHandlers struct {
	db       *gorm.DB
	tickets  TicketService
	roster   RosterService
	eventTTL time.Duration
}

// NewAdminHandlers constructs an AdminHandlers bound to the given services.
// eventTTL bounds how long recorded Idempotency-Key values stay valid.
func NewAdminHandlers(db *gorm.DB, tickets TicketService, roster RosterService, eventTTL time.Duration) *AdminHandlers {
	return &AdminHandlers{db: db, tickets: tickets, roster: roster, eventTTL: eventTTL}
}

// pageParams reads ?page= and ?page_size= with sane bounds.
func pageParams(c *gin.Context) (int, int) {
	page := utils.AtoiDefault(c.Query("page"), 1)
	size := utils.AtoiDefault(c.Query("page_size"), 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}

// ListUsers handles GET /users.
func (h *AdminHandlers) ListUsers(c *gin.Context) {
	page, size := pageParams(c)
	ctx := c.Request.Context()

	total, err := repo.CountUsers(ctx, h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list users")
		return
	}
	items, err := repo.ListUsersPage(ctx, h.db, (page-1)*size, size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list users")
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items, "total": total, "page": page, "page_size": size})
}

// GetUser handles GET /users/:id.
func (h *AdminHandlers) GetUser(c *gin.Context) {
	u, err := repo.GetUser(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load user")
		return
	}
	ok(c, http.StatusOK, u)
}

// ListUserMessages handles GET /users/:id/messages.
func (h *AdminHandlers) ListUserMessages(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	msgs, err := repo.ListMessagesForUser(c.Request.Context(), h.db, c.Param("id"), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list messages")
		return
	}
	ok(c, http.StatusOK, gin.H{"items": msgs})
}

// ListTickets handles GET /tickets.
func (h *AdminHandlers) ListTickets(c *gin.Context) {
	page, size := pageParams(c)
	items, total, err := h.tickets.ListPage(c.Request.Context(), page, size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list tickets")
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items, "total": total, "page": page, "page_size": size})
}

// GetTicket handles GET /tickets/:id.
func (h *AdminHandlers) GetTicket(c *gin.Context) {
	ticket, assignments, err := h.tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrTicketNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "ticket not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load ticket")
		return
	}
	ok(c, http.StatusOK, gin.H{"ticket": ticket, "assignments": assignments})
}

// updateTicketStatusRequest is the body for PUT /tickets/:id/status.
type updateTicketStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateTicketStatus handles PUT /tickets/:id/status.
func (h *AdminHandlers) UpdateTicketStatus(c *gin.Context) {
	var req updateTicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
		return
	}
	err := h.tickets.SetStatus(c.Request.Context(), c.Param("id"), strings.ToLower(strings.TrimSpace(req.Status)))
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrInvalidTicketStatus):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be open, in_progress, or closed")
	case errors.Is(err, services.ErrTicketNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "ticket not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, "could not update ticket")
	}
}

// createCounsellorRequest is the body for POST /counsellors.
type createCounsellorRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"    binding:"required"`
	Name     string `json:"name"`
}

// CreateCounsellor handles POST /counsellors.
//
// Supports Idempotency-Key: a replayed request returns the previously created
// counsellor with 200 instead of a 409.
func (h *AdminHandlers) CreateCounsellor(c *gin.Context) {
	var req createCounsellorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and email are required")
		return
	}
	ctx := c.Request.Context()

	if middleware.IsReplay(c) {
		counsellor, err := h.roster.Get(ctx, req.Username)
		if err == nil {
			ok(c, http.StatusOK, gin.H{"counsellor": counsellor, "magic_link": ""})
			return
		}
		// Replay flag with no record; fall through and create normally.
	}

	counsellor, magicLink, err := h.roster.Register(ctx, req.Username, req.Email, req.Name)
	switch {
	case err == nil:
		h.recordIdempotency(c, req.Username)
		ok(c, http.StatusCreated, gin.H{"counsellor": counsellor, "magic_link": magicLink})
	case errors.Is(err, services.ErrDuplicateCounsellor):
		fail(c, http.StatusConflict, ErrCodeConflict, "counsellor already registered")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not register counsellor")
	}
}

// recordIdempotency stores the request's Idempotency-Key (when present) so a
// retried request is recognized as a replay. Must mirror the router's lookup
// key construction.
func (h *AdminHandlers) recordIdempotency(c *gin.Context, userID string) {
	key, okKey := middleware.GetIdempotencyKey(c)
	if !okKey {
		return
	}
	id := "idem:" + c.FullPath() + ":" + key
	if err := repo.MarkEventProcessed(c.Request.Context(), h.db, id, userID, h.eventTTL); err != nil && !errors.Is(err, repo.ErrDuplicateEvent) {
		middleware.LoggerFrom(c).Error().Err(err).Msg("idempotency key not recorded")
	}
}

// ListCounsellors handles GET /counsellors.
func (h *AdminHandlers) ListCounsellors(c *gin.Context) {
	items, err := h.roster.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list counsellors")
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items})
}

// GetCounsellor handles GET /counsellors/:username.
func (h *AdminHandlers) GetCounsellor(c *gin.Context) {
	counsellor, err := h.roster.Get(c.Request.Context(), c.Param("username"))
	switch {
	case err == nil:
		ok(c, http.StatusOK, counsellor)
	case errors.Is(err, services.ErrCounsellorNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "counsellor not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load counsellor")
	}
}

// DeleteCounsellor handles DELETE /counsellors/:username.
func (h *AdminHandlers) DeleteCounsellor(c *gin.Context) {
	err := h.roster.Remove(c.Request.Context(), c.Param("username"))
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrCounsellorNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "counsellor not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not remove counsellor")
	}
}

// bindChannelRequest is the body for POST /counsellors/:username/channels.
type bindChannelRequest struct {
	Channel  string  `json:"channel" binding:"required"`
	Address  string  `json:"address" binding:"required"`
	AuthKey  *string `json:"auth_key"`
	Priority int     `json:"priority"`
}

// BindCounsellorChannel handles POST /counsellors/:username/channels.
func (h *AdminHandlers) BindCounsellorChannel(c *gin.Context) {
	var req bindChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel and address are required")
		return
	}
	err := h.roster.BindChannel(c.Request.Context(), c.Param("username"), req.Channel, req.Address, req.AuthKey, req.Priority)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrCounsellorNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "counsellor not found")
	case errors.Is(err, services.ErrDuplicateCounsellor):
		fail(c, http.StatusConflict, ErrCodeConflict, "channel already bound")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not bind channel")
	}
}

// GetStats handles GET /stats.
func (h *AdminHandlers) GetStats(c *gin.Context) {
	stats, err := repo.CollectStats(c.Request.Context(), h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not collect stats")
		return
	}
	ok(c, http.StatusOK, stats)
}
