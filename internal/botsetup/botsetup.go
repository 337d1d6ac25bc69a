// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package botsetup moves the bot between Bot API servers and configures its
// commands, webhook and profile.
//
// Every function here stops at the first failed call. Nothing is retried and
// steps that already succeeded are not rolled back.
package botsetup

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.astrophena.name/devbox/internal/logger"
	"go.astrophena.name/devbox/internal/telegram"
)

// Commands is the bot's command list.
var Commands = []telegram.Command{
	{Command: "start", Description: "Starts a conversation with this bot"},
	{Command: "frequently_asked_questions", Description: "Get answers for frequently asked questions."},
	{Command: "dev_support", Description: "A starting point for Solana technical resources."},
	{Command: "community", Description: "Community building and resources."},
	{Command: "useful_links", Description: "Links to useful resources about Solana."},
	{Command: "biz_rel", Description: "Business Relations with the Solana foundation."},
	{Command: "marketing_pr_branding", Description: "Marketing, PR, and Solana branding guidelines."},
}

// AllowedUpdates are the update types the worker handles.
var AllowedUpdates = []string{"message", "inline_query", "chosen_inline_result", "callback_query"}

const (
	getMeTimeout       = 5 * time.Second
	prodMaxConnections = 100
)

// Params configure a migration between Bot API servers.
type Params struct {
	// Token is the bot token.
	Token string
	// WebhookSecret is sent by the Bot API in the
	// X-Telegram-Bot-Api-Secret-Token header of every webhook request.
	WebhookSecret string
	// ProdURL is the production Bot API. Defaults to telegram.DefaultAPI.
	ProdURL string
	// LocalURL is the local telegram-bot-api server.
	LocalURL string
	// WorkerURL is where the local server delivers updates.
	WorkerURL string
	// HTTPClient is optional.
	HTTPClient *http.Client
	// Logf is optional.
	Logf logger.Logf
}

func (p Params) clients() (prod, local *telegram.Client) {
	prod = telegram.New(cmp.Or(p.ProdURL, telegram.DefaultAPI), p.Token, p.HTTPClient)
	local = telegram.New(p.LocalURL, p.Token, p.HTTPClient)
	return prod, local
}

// MigrateToLocal logs the bot out of the production Bot API, binds it to the
// local server and points the local server's webhook at the local worker.
//
// Pending updates are dropped when the webhook is set. Never do this against
// production.
func MigrateToLocal(ctx context.Context, p Params) error {
	logf := logger.Or(p.Logf)
	prod, local := p.clients()

	logf("Logging bot out of %s.", prod.BaseURL())
	if err := logOut(ctx, prod); err != nil {
		return fmt.Errorf("logging out of %s: %w", prod.BaseURL(), err)
	}

	logf("Registering bot on %s.", local.BaseURL())
	if err := getMe(ctx, local); err != nil {
		return fmt.Errorf("registering on %s: %w", local.BaseURL(), err)
	}

	logf("Configuring bot commands.")
	if err := ConfigureCommands(ctx, local); err != nil {
		return err
	}

	logf("Pointing webhook at %s.", p.WorkerURL)
	if err := local.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	if err := local.SetWebhook(ctx, telegram.WebhookParams{
		URL:                p.WorkerURL,
		SecretToken:        p.WebhookSecret,
		AllowedUpdates:     AllowedUpdates,
		DropPendingUpdates: true,
	}); err != nil {
		return fmt.Errorf("setting webhook: %w", err)
	}
	info, err := local.GetWebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("checking webhook: %w", err)
	}
	logf("Webhook is set to %s (%d pending updates).", info.URL, info.PendingUpdateCount)

	return nil
}

// MigrateToProd logs the bot out of the local server, if one is running, and
// binds it back to the production Bot API.
func MigrateToProd(ctx context.Context, p Params) error {
	logf := logger.Or(p.Logf)
	prod, local := p.clients()

	logf("Logging bot out of %s.", local.BaseURL())
	err := logOut(ctx, local)
	var tgErr *telegram.Error
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case telegram.IsNotFound(err):
		logf("Local Bot API server doesn't appear to be running: got a 404 for logOut.")
	case !errors.As(err, &tgErr):
		// Connection refused and the like: nothing is listening.
		logf("Local Bot API server is not reachable: %v", err)
	default:
		return fmt.Errorf("logging out of %s: %w", local.BaseURL(), err)
	}

	logf("Registering bot on %s.", prod.BaseURL())
	if err := getMe(ctx, prod); err != nil {
		return fmt.Errorf("registering on %s: %w", prod.BaseURL(), err)
	}
	return nil
}

// ConfigureCommands sets [Commands] for all private chats.
func ConfigureCommands(ctx context.Context, c *telegram.Client) error {
	if err := c.SetMyCommands(ctx, Commands, telegram.ScopeAllPrivateChats); err != nil {
		return fmt.Errorf("setting commands: %w", err)
	}
	return nil
}

// ConfigureWebhook points the production webhook at workerURL. Pending
// updates are kept.
func ConfigureWebhook(ctx context.Context, c *telegram.Client, workerURL, secret string) error {
	if err := c.SetWebhook(ctx, telegram.WebhookParams{
		URL:            workerURL,
		SecretToken:    secret,
		MaxConnections: prodMaxConnections,
		AllowedUpdates: AllowedUpdates,
	}); err != nil {
		return fmt.Errorf("setting webhook: %w", err)
	}
	return nil
}

// Info is the bot's public profile.
type Info struct {
	// DisplayName is the bot's name.
	DisplayName string
	// InstanceName tells deployments apart, for example "Staging".
	InstanceName string
	// Tagline is used for both the description and the short description.
	Tagline string
}

// Name returns the full display name of the bot.
func (i Info) Name() string { return i.DisplayName + " - " + i.InstanceName }

// ConfigureInfo sets the bot's name, description and short description.
func ConfigureInfo(ctx context.Context, c *telegram.Client, info Info) error {
	if err := c.SetMyName(ctx, info.Name()); err != nil {
		return fmt.Errorf("setting name: %w", err)
	}
	if err := c.SetMyDescription(ctx, info.Tagline); err != nil {
		return fmt.Errorf("setting description: %w", err)
	}
	if err := c.SetMyShortDescription(ctx, info.Tagline); err != nil {
		return fmt.Errorf("setting short description: %w", err)
	}
	return nil
}

func logOut(ctx context.Context, c *telegram.Client) error {
	err := c.LogOut(ctx)
	if telegram.IsLoggedOut(err) {
		return nil
	}
	return err
}

func getMe(ctx context.Context, c *telegram.Client) error {
	ctx, cancel := context.WithTimeout(ctx, getMeTimeout)
	defer cancel()
	_, err := c.GetMe(ctx)
	return err
}
