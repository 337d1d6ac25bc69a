// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package devbox

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"time"

	"go.astrophena.name/devbox/internal/portgate"
	"go.astrophena.name/devbox/internal/supervisor"
	"go.astrophena.name/devbox/internal/telegram"
)

// Fixed local ports.
const (
	// WorkerPort serves the local worker. Telegram only delivers webhooks to
	// ports 443, 80, 88 and 8443.
	WorkerPort = 8443
	// BotAPIPort serves the local telegram-bot-api server. fetch in the
	// worker runtime ignores any other port.
	BotAPIPort = 80
	// ProxyPort is reserved for an intercepting proxy between the worker and
	// the Bot API.
	ProxyPort = 8080
	// FakeBotAPIPort is reserved for a fake Bot API used by simulations.
	FakeBotAPIPort = 8081
)

// ServerURLVar is the worker variable holding the Bot API base URL.
const ServerURLVar = "TELEGRAM_BOT_SERVER_URL"

// Config describes a local development session.
type Config struct {
	// Env is the wrangler environment served locally.
	Env string
	// Dir is the worker project directory. Empty means the current
	// directory.
	Dir string

	WorkerPort     int
	BotAPIPort     int
	ProxyPort      int
	FakeBotAPIPort int

	// LocalBotAPI starts a local telegram-bot-api server and moves the bot
	// onto it.
	LocalBotAPI bool
	// BotAPIWorkDir is recreated empty before the local server starts,
	// relative to Dir.
	BotAPIWorkDir string
	// ProdBotAPI is the production Bot API the bot is logged out of.
	ProdBotAPI string

	// Vars override worker variables from wrangler.toml.
	Vars map[string]string

	// Cron invokes the worker's scheduled handler every CronInterval.
	Cron         bool
	CronInterval time.Duration

	// PollInterval is the time between two port probes.
	PollInterval time.Duration
	// Profile is sourced by the shell before every launched command.
	Profile string
	// LockFile guards against two sessions at once, relative to Dir.
	LockFile string
	// TeardownTimeout bounds how long terminating processes may take.
	TeardownTimeout time.Duration
}

// DefaultConfig returns the configuration of a session serving the dev
// environment.
func DefaultConfig() Config {
	return Config{
		Env:             "dev",
		WorkerPort:      WorkerPort,
		BotAPIPort:      BotAPIPort,
		ProxyPort:       ProxyPort,
		FakeBotAPIPort:  FakeBotAPIPort,
		LocalBotAPI:     true,
		BotAPIWorkDir:   "telegram_bot_api_working_dir",
		ProdBotAPI:      telegram.DefaultAPI,
		CronInterval:    time.Minute,
		PollInterval:    portgate.DefaultInterval,
		Profile:         supervisor.DefaultProfile(),
		LockFile:        ".devbox.lock",
		TeardownTimeout: 30 * time.Second,
	}
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	if c.Env == "" {
		return errors.New("environment is empty")
	}
	for name, port := range map[string]int{
		"worker":  c.WorkerPort,
		"Bot API": c.BotAPIPort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s port %d is out of range", name, port)
		}
	}
	if c.LocalBotAPI && c.WorkerPort == c.BotAPIPort {
		return fmt.Errorf("worker and Bot API can't share port %d", c.WorkerPort)
	}
	if c.LocalBotAPI && c.BotAPIWorkDir == "" {
		return errors.New("working directory of the local Bot API is empty")
	}
	return nil
}

// LocalBotAPIURL is the base URL of the local telegram-bot-api server.
func (c Config) LocalBotAPIURL() string {
	return "http://127.0.0.1:" + strconv.Itoa(c.BotAPIPort)
}

// WorkerURL is the base URL of the local worker.
func (c Config) WorkerURL() string {
	return "http://127.0.0.1:" + strconv.Itoa(c.WorkerPort)
}

// WorkerVars returns the variables the local worker is started with: Vars,
// with the Bot API pointed at the local server unless set explicitly. Without
// a local server the worker keeps whatever wrangler.toml says.
func (c Config) WorkerVars() map[string]string {
	vars := maps.Clone(c.Vars)
	if vars == nil {
		vars = make(map[string]string)
	}
	if _, ok := vars[ServerURLVar]; !ok && c.LocalBotAPI {
		vars[ServerURLVar] = c.LocalBotAPIURL()
	}
	return vars
}

// BotAPICommand returns the command line starting the local telegram-bot-api
// server.
func (c Config) BotAPICommand(apiID, apiHash string) string {
	return "telegram-bot-api --api-id=" + apiID +
		" --api-hash=" + apiHash +
		" --dir=" + c.BotAPIWorkDir + string(os.PathSeparator) +
		" --local --log=log.log --http-port=" + strconv.Itoa(c.BotAPIPort)
}
