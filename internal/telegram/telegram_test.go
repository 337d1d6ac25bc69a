// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"go.astrophena.name/devbox/internal/telegram"
	"go.astrophena.name/devbox/internal/telegram/telegramtest"
	"go.astrophena.name/devbox/internal/testutil"
)

func TestGetMe(t *testing.T) {
	t.Parallel()

	srv := telegramtest.NewServer(t)
	c := telegram.New(srv.URL, telegramtest.Token, nil)

	me, err := c.GetMe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, me, &telegram.User{ID: 123456, IsBot: true, FirstName: "Test Bot", Username: "test_bot"})
	testutil.AssertEqual(t, srv.Calls()[0].HTTPMethod, http.MethodGet)
}

func TestSetWebhookBody(t *testing.T) {
	t.Parallel()

	srv := telegramtest.NewServer(t)
	c := telegram.New(srv.URL, telegramtest.Token, nil)

	if err := c.SetWebhook(context.Background(), telegram.WebhookParams{
		URL:                "http://127.0.0.1:8443",
		SecretToken:        "s3cr3t",
		AllowedUpdates:     []string{"message"},
		DropPendingUpdates: true,
	}); err != nil {
		t.Fatal(err)
	}

	got := testutil.UnmarshalJSON[map[string]any](t, srv.Calls()[0].Body)
	testutil.AssertEqual(t, got, map[string]any{
		"url":                  "http://127.0.0.1:8443",
		"secret_token":         "s3cr3t",
		"allowed_updates":      []any{"message"},
		"drop_pending_updates": true,
	})
}

func TestSetMyCommandsBody(t *testing.T) {
	t.Parallel()

	srv := telegramtest.NewServer(t)
	c := telegram.New(srv.URL, telegramtest.Token, nil)

	if err := c.SetMyCommands(context.Background(), []telegram.Command{
		{Command: "start", Description: "Starts a conversation"},
	}, telegram.ScopeAllPrivateChats); err != nil {
		t.Fatal(err)
	}

	got := testutil.UnmarshalJSON[map[string]any](t, srv.Calls()[0].Body)
	testutil.AssertEqual(t, got, map[string]any{
		"commands": []any{map[string]any{"command": "start", "description": "Starts a conversation"}},
		"scope":    map[string]any{"type": "all_private_chats"},
	})
}

func TestErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status        int
		body          string
		wantStatus    int
		wantDesc      string
		wantLoggedOut bool
		wantNotFound  bool
	}{
		"already logged out": {
			status:        http.StatusBadRequest,
			body:          `{"ok":false,"error_code":400,"description":"Logged out"}`,
			wantStatus:    http.StatusBadRequest,
			wantDesc:      "Logged out",
			wantLoggedOut: true,
		},
		"ok false with 200": {
			status:        http.StatusOK,
			body:          `{"ok":false,"description":"Logged out"}`,
			wantStatus:    http.StatusOK,
			wantDesc:      "Logged out",
			wantLoggedOut: true,
		},
		"unauthorized": {
			status:     http.StatusUnauthorized,
			body:       `{"ok":false,"error_code":401,"description":"Unauthorized"}`,
			wantStatus: http.StatusUnauthorized,
			wantDesc:   "Unauthorized",
		},
		"not found, not JSON": {
			status:       http.StatusNotFound,
			body:         `<html>nope</html>`,
			wantStatus:   http.StatusNotFound,
			wantNotFound: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := telegramtest.NewServer(t)
			srv.Handle("logOut", tc.status, tc.body)
			c := telegram.New(srv.URL, telegramtest.Token, nil)

			err := c.LogOut(context.Background())
			var tgErr *telegram.Error
			if !errors.As(err, &tgErr) {
				t.Fatalf("LogOut() error = %v, want *telegram.Error", err)
			}
			testutil.AssertEqual(t, tgErr.Method, "logOut")
			testutil.AssertEqual(t, tgErr.StatusCode, tc.wantStatus)
			testutil.AssertEqual(t, tgErr.Description, tc.wantDesc)
			testutil.AssertEqual(t, telegram.IsLoggedOut(err), tc.wantLoggedOut)
			testutil.AssertEqual(t, telegram.IsNotFound(err), tc.wantNotFound)
		})
	}
}

func TestTokenScrubbed(t *testing.T) {
	t.Parallel()

	srv := telegramtest.NewServer(t)
	url := srv.URL
	srv.Close()

	c := telegram.New(url, telegramtest.Token, nil)
	err := c.DeleteWebhook(context.Background())
	if err == nil {
		t.Fatal("DeleteWebhook() error = nil, want non-nil")
	}
	if strings.Contains(err.Error(), telegramtest.Token) {
		t.Fatalf("error leaks the token: %v", err)
	}
}

func TestMethodURL(t *testing.T) {
	t.Parallel()

	c := telegram.New("http://127.0.0.1:80/", "tok", nil)
	testutil.AssertEqual(t, c.MethodURL("getMe"), "http://127.0.0.1:80/bottok/getMe")
	testutil.AssertEqual(t, c.BaseURL(), "http://127.0.0.1:80")
}
