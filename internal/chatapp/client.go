// Package chatapp is the HTTP client for the companion counsellor chat
// application. In multi-counsellor deployments every escalation gets a
// private room there: the bot provisions a user token, creates (or reuses)
// the room, joins both parties, and relays messages into it.
package chatapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the contract the escalation flow needs. *HTTPClient is the
// production implementation; tests substitute fakes.
type Client interface {
	// CreateUserToken provisions an API key for a chat-app account,
	// creating the account if needed.
	CreateUserToken(ctx context.Context, userID string) (string, error)

	// CreateRoom creates a private room for a user/counsellor pair and
	// returns its slug.
	CreateRoom(ctx context.Context, userID, counsellorID, authToken string) (string, error)

	// JoinRoom adds the token's account to a room.
	JoinRoom(ctx context.Context, roomSlug, authToken string) error

	// RoomExists reports whether a room slug is already registered.
	RoomExists(ctx context.Context, slug, authToken string) (bool, error)

	// SendMessage posts a message into a room on behalf of the token's
	// account.
	SendMessage(ctx context.Context, roomSlug, message, authToken string) error

	// GenerateAdminKey exchanges the super-admin secret for an admin API
	// key used to provision counsellor accounts.
	GenerateAdminKey(ctx context.Context) (string, error)

	// ProvisionCounsellor creates a counsellor account and returns the
	// magic sign-in link to hand to them.
	ProvisionCounsellor(ctx context.Context, username, email, adminKey string) (string, error)
}

// RoomSlug is the deterministic room name for a user/counsellor pair, so a
// re-escalation to the same counsellor lands in the existing room.
func RoomSlug(userID, counsellorID string) string {
	return "wa_" + userID + "_" + counsellorID
}

// HTTPClient talks to the chat app's REST API.
type HTTPClient struct {
	baseURL     string
	adminSecret string
	httpClient  *http.Client
}

// NewHTTPClient constructs a client for the chat app at baseURL.
// adminSecret is the super-admin secret used by GenerateAdminKey.
func NewHTTPClient(baseURL, adminSecret string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		adminSecret: adminSecret,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// CreateUserToken implements Client.
func (c *HTTPClient) CreateUserToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is empty")
	}
	var out struct {
		APIKey string `json:"api_key"`
	}
	body := map[string]any{"username": userID, "expires_in_days": 60}
	if err := c.do(ctx, http.MethodPost, "/auth/generate-key", body, nil, &out); err != nil {
		return "", fmt.Errorf("create user token: %w", err)
	}
	return out.APIKey, nil
}

// CreateRoom implements Client.
func (c *HTTPClient) CreateRoom(ctx context.Context, userID, counsellorID, authToken string) (string, error) {
	if userID == "" || counsellorID == "" {
		return "", fmt.Errorf("user and counsellor ids are required")
	}
	var out struct {
		Slug string `json:"slug"`
	}
	body := map[string]any{"slug": RoomSlug(userID, counsellorID), "is_private": true}
	if err := c.do(ctx, http.MethodPost, "/rooms", body, bearer(authToken), &out); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	return out.Slug, nil
}

// JoinRoom implements Client.
func (c *HTTPClient) JoinRoom(ctx context.Context, roomSlug, authToken string) error {
	if roomSlug == "" {
		return fmt.Errorf("room slug is empty")
	}
	if err := c.do(ctx, http.MethodPost, "/rooms/"+roomSlug+"/join", nil, bearer(authToken), nil); err != nil {
		return fmt.Errorf("join room %s: %w", roomSlug, err)
	}
	return nil
}

// RoomExists implements Client.
func (c *HTTPClient) RoomExists(ctx context.Context, slug, authToken string) (bool, error) {
	var out struct {
		Rooms []struct {
			Slug string `json:"slug"`
		} `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, bearer(authToken), &out); err != nil {
		return false, fmt.Errorf("list rooms: %w", err)
	}
	for _, r := range out.Rooms {
		if r.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// SendMessage implements Client.
func (c *HTTPClient) SendMessage(ctx context.Context, roomSlug, message, authToken string) error {
	if roomSlug == "" || message == "" {
		return fmt.Errorf("room slug and message are required")
	}
	body := map[string]any{"text": message}
	if err := c.do(ctx, http.MethodPost, "/rooms/"+roomSlug+"/messages", body, bearer(authToken), nil); err != nil {
		return fmt.Errorf("send room message: %w", err)
	}
	return nil
}

// GenerateAdminKey implements Client.
func (c *HTTPClient) GenerateAdminKey(ctx context.Context) (string, error) {
	var out struct {
		APIKey string `json:"api_key"`
	}
	body := map[string]any{"name": "Counsel Bot Admin", "expires_in_days": 365}
	hdr := map[string]string{"X-Super-Admin-Secret": c.adminSecret}
	if err := c.do(ctx, http.MethodPost, "/admin/generate-key", body, hdr, &out); err != nil {
		return "", fmt.Errorf("generate admin key: %w", err)
	}
	return out.APIKey, nil
}

// ProvisionCounsellor implements Client.
func (c *HTTPClient) ProvisionCounsellor(ctx context.Context, username, email, adminKey string) (string, error) {
	if username == "" || email == "" {
		return "", fmt.Errorf("username and email are required")
	}
	var out struct {
		MagicLink string `json:"magic_link"`
	}
	body := map[string]any{"username": username, "email": email}
	hdr := map[string]string{"X-Admin-API-Key": adminKey}
	if err := c.do(ctx, http.MethodPost, "/admin/provision-user", body, hdr, &out); err != nil {
		return "", fmt.Errorf("provision counsellor: %w", err)
	}
	return out.MagicLink, nil
}

func bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// do performs one JSON round trip against the chat app API. Any 2xx status
// is a success; the decoded body (when out != nil) is best effort because
// some endpoints return empty bodies.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chat app returned %d: %s", resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("decode chat app response: %w", err)
		}
	}
	return nil
}
