// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram implements the subset of the Telegram Bot API used to
// register and configure a bot.
//
// The same client talks to the production Bot API and to a local
// telegram-bot-api server, which exposes the same methods under a different
// base URL.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.astrophena.name/devbox/internal/request"
)

// DefaultAPI is the base URL of the production Bot API.
const DefaultAPI = "https://api.telegram.org"

// LoggedOut is the description the Bot API returns from logOut when the bot
// is already logged out of that server.
const LoggedOut = "Logged out"

// Client calls Bot API methods on behalf of a single bot.
type Client struct {
	baseURL  string
	token    string
	httpc    *http.Client
	scrubber *strings.Replacer
}

// New returns a Client that sends requests to baseURL (for example
// [DefaultAPI] or "http://127.0.0.1:80") authenticated with token. If httpc
// is nil, [request.DefaultClient] is used.
func New(baseURL, token string, httpc *http.Client) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpc:   httpc,
	}
	if c.httpc == nil {
		c.httpc = request.DefaultClient
	}
	if token != "" {
		c.scrubber = strings.NewReplacer(token, "[EXPUNGED]")
	}
	return c
}

// BaseURL returns the server this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// MethodURL returns the URL of a Bot API method. It contains the bot token.
func (c *Client) MethodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// Error is a failed Bot API call: either a non-200 response or a response
// with "ok" set to false.
type Error struct {
	Method      string
	StatusCode  int
	Description string
	// Body is the raw response body.
	Body []byte
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.StatusCode, e.Body)
}

// IsLoggedOut reports whether err is a logOut response saying the bot is
// already logged out.
func IsLoggedOut(err error) bool {
	var tgErr *Error
	return errors.As(err, &tgErr) && tgErr.Description == LoggedOut
}

// IsNotFound reports whether err is a 404 response. A local server that is
// not serving the Bot API answers every method with 404.
func IsNotFound(err error) bool {
	var tgErr *Error
	return errors.As(err, &tgErr) && tgErr.StatusCode == http.StatusNotFound
}

type response[T any] struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Result      T      `json:"result"`
}

func call[T any](ctx context.Context, c *Client, httpMethod, method string, args any) (T, error) {
	var zero T
	resp, err := request.Make[response[T]](ctx, request.Params{
		Method:     httpMethod,
		URL:        c.MethodURL(method),
		Body:       args,
		HTTPClient: c.httpc,
		Scrubber:   c.scrubber,
	})
	if err != nil {
		var statusErr *request.StatusError
		if !errors.As(err, &statusErr) {
			return zero, err
		}
		tgErr := &Error{
			Method:     method,
			StatusCode: statusErr.StatusCode,
			Body:       statusErr.Body,
		}
		var body response[json.RawMessage]
		if json.Unmarshal(statusErr.Body, &body) == nil {
			tgErr.Description = body.Description
		}
		return zero, tgErr
	}
	if !resp.OK {
		return zero, &Error{
			Method:      method,
			StatusCode:  http.StatusOK,
			Description: resp.Description,
		}
	}
	return resp.Result, nil
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Command is a bot command shown in the Telegram client menu.
type Command struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// CommandScope limits where a command list applies.
type CommandScope struct {
	Type string `json:"type"`
}

// ScopeAllPrivateChats applies commands to all private chats.
var ScopeAllPrivateChats = &CommandScope{Type: "all_private_chats"}

// WebhookParams are the arguments of setWebhook.
type WebhookParams struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secret_token,omitempty"`
	MaxConnections     int      `json:"max_connections,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
}

// WebhookInfo is the result of getWebhookInfo.
type WebhookInfo struct {
	URL                string   `json:"url"`
	PendingUpdateCount int      `json:"pending_update_count"`
	LastErrorDate      int64    `json:"last_error_date,omitempty"`
	LastErrorMessage   string   `json:"last_error_message,omitempty"`
	MaxConnections     int      `json:"max_connections,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
}

// LogOut logs the bot out of the server this client talks to. Afterwards the
// bot can be used with a different Bot API server.
func (c *Client) LogOut(ctx context.Context) error {
	_, err := call[bool](ctx, c, http.MethodPost, "logOut", nil)
	return err
}

// GetMe returns the bot's own user. Calling it against a local Bot API server
// binds the bot's session to that server.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return call[*User](ctx, c, http.MethodGet, "getMe", nil)
}

// SetMyCommands replaces the bot's command list for scope.
func (c *Client) SetMyCommands(ctx context.Context, commands []Command, scope *CommandScope) error {
	_, err := call[bool](ctx, c, http.MethodPost, "setMyCommands", struct {
		Commands []Command     `json:"commands"`
		Scope    *CommandScope `json:"scope,omitempty"`
	}{commands, scope})
	return err
}

// DeleteWebhook removes the webhook integration, if any.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := call[bool](ctx, c, http.MethodPost, "deleteWebhook", nil)
	return err
}

// SetWebhook points the bot's updates at an HTTPS (or local HTTP) endpoint.
func (c *Client) SetWebhook(ctx context.Context, p WebhookParams) error {
	_, err := call[bool](ctx, c, http.MethodPost, "setWebhook", p)
	return err
}

// GetWebhookInfo returns the current webhook status.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	return call[*WebhookInfo](ctx, c, http.MethodGet, "getWebhookInfo", nil)
}

// SetMyName changes the bot's display name.
func (c *Client) SetMyName(ctx context.Context, name string) error {
	_, err := call[bool](ctx, c, http.MethodPost, "setMyName", map[string]string{"name": name})
	return err
}

// SetMyDescription changes the text shown in an empty chat with the bot.
func (c *Client) SetMyDescription(ctx context.Context, description string) error {
	_, err := call[bool](ctx, c, http.MethodPost, "setMyDescription", map[string]string{"description": description})
	return err
}

// SetMyShortDescription changes the text shown on the bot's profile page.
func (c *Client) SetMyShortDescription(ctx context.Context, description string) error {
	_, err := call[bool](ctx, c, http.MethodPost, "setMyShortDescription", map[string]string{"short_description": description})
	return err
}
