// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.astrophena.name/devbox/internal/cli"
	"go.astrophena.name/devbox/internal/cli/clitest"
	"go.astrophena.name/devbox/internal/operator"
	"go.astrophena.name/devbox/internal/telegram/telegramtest"
	"go.astrophena.name/devbox/internal/testutil"
	"go.astrophena.name/devbox/internal/wrangler"
)

const webhookSecret = "prod-webhook-secret"

// testApp is an app wired to fake Bot API servers, a fake worker and a fake
// wrangler.
type testApp struct {
	*app
	dir         string
	prod, local *telegramtest.Server
	worker      *httptest.Server
	workerDown  atomic.Bool

	mu   sync.Mutex
	runs []string
}

func (ta *testApp) Flags(fs *flag.FlagSet) {
	ta.app.Flags(fs)
	fs.Set("dir", ta.dir)
	fs.Set("local-bot-api", ta.local.URL)
	fs.Set("worker-url", ta.worker.URL)
}

func (ta *testApp) wranglerRuns() []string {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	return ta.runs
}

func setup(t *testing.T) *testApp {
	ta := &testApp{
		dir:   t.TempDir(),
		prod:  telegramtest.NewServer(t),
		local: telegramtest.NewServer(t),
	}
	ta.worker = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ta.workerDown.Load() {
			http.Error(w, "not deployed", http.StatusNotFound)
			return
		}
		if r.Header.Get(wrangler.WebhookSecretHeader) != webhookSecret {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}))
	t.Cleanup(ta.worker.Close)

	ta.app = &app{
		httpc: ta.prod.Client(),
		run: func(_ context.Context, cmd *exec.Cmd) error {
			run := strings.Join(cmd.Args[2:], " ")
			switch {
			case run == "kv:namespace list":
				io.WriteString(cmd.Stdout, `[{"id":"ns-dev","title":"dev"},{"id":"ns-prod","title":"prod"}]`)
			case strings.HasPrefix(run, "kv:key --namespace-id=ns-prod get "):
				io.WriteString(cmd.Stdout, "2026-10-01\n")
			}
			if cmd.Stdin != nil {
				b, err := io.ReadAll(cmd.Stdin)
				if err != nil {
					return err
				}
				run += " <<< " + string(b)
			}
			ta.mu.Lock()
			ta.runs = append(ta.runs, run)
			ta.mu.Unlock()
			return nil
		},
	}

	writeFile(t, filepath.Join(ta.dir, "wrangler.toml"), fmt.Sprintf(`name = "quizbot"

[env.prod]
name = "quizbot-prod"

[env.prod.vars]
TELEGRAM_BOT_SERVER_URL = %q
CLOUDFLARE_ACCOUNT_ID = "acme"
TELEGRAM_BOT_DISPLAY_NAME = "Quizbot"
TELEGRAM_BOT_INSTANCE_DISPLAY_NAME = "Production"
TELEGRAM_BOT_TAGLINE = "Daily trivia"
`, ta.prod.URL))
	writeFile(t, filepath.Join(ta.dir, ".dev.vars.prod"), fmt.Sprintf(`SECRET__TELEGRAM_API_ID = "12345"
SECRET__TELEGRAM_API_HASH = "deadbeef"
SECRET__TELEGRAM_BOT_TOKEN = %q
SECRET__TELEGRAM_BOT_WEBHOOK_SECRET_TOKEN = %q
LOCAL_NOTE = "not pushed"
`, telegramtest.Token, webhookSecret))

	return ta
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func answers(a ...string) io.Reader { return strings.NewReader(strings.Join(a, "\n") + "\n") }

func TestRun(t *testing.T) {
	t.Parallel()

	clitest.Run(t, setup, map[string]clitest.Case[*testApp]{
		"prints usage with help flag": {
			Args:         []string{"-h"},
			WantErr:      flag.ErrHelp,
			WantInStderr: "Deploy walks through a production deployment",
		},
		"version": {
			Args:    []string{"-version"},
			WantErr: cli.ErrExitVersion,
		},
		"missing env": {
			WantErr: cli.ErrInvalidArgs,
		},
		"unexpected arguments": {
			Args:    []string{"-env", "prod", "now"},
			WantErr: cli.ErrInvalidArgs,
		},
		"everything": {
			Args: []string{"-env", "prod"},
			Stdin: answers(
				"y",                // login
				"y",                // login looks correct
				"y",                // settings look correct
				"y",                // deploy
				"y",                // push secrets
				"y", "y", "y", "y", // each secret
				"y", // migrate
				"y", // webhook
				"y", // commands
				"y", // info
			),
			WantInStdout: "TELEGRAM_BOT_TAGLINE",
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.wranglerRuns(), []string{
					"login",
					"whoami",
					"deploy --env prod",
					"secret put SECRET__TELEGRAM_API_HASH --env prod <<< deadbeef",
					"secret put SECRET__TELEGRAM_API_ID --env prod <<< 12345",
					"secret put SECRET__TELEGRAM_BOT_TOKEN --env prod <<< " + telegramtest.Token,
					"secret put SECRET__TELEGRAM_BOT_WEBHOOK_SECRET_TOKEN --env prod <<< " + webhookSecret,
				})
				testutil.AssertEqual(t, ta.local.Methods(), []string{"logOut"})
				testutil.AssertEqual(t, ta.prod.Methods(), []string{
					"getMe",
					"setWebhook",
					"setMyCommands",
					"setMyName",
					"setMyDescription",
					"setMyShortDescription",
				})

				calls := ta.prod.Calls()
				webhook := testutil.UnmarshalJSON[map[string]any](t, calls[1].Body)
				testutil.AssertEqual(t, webhook["url"], any(ta.worker.URL))
				testutil.AssertEqual(t, webhook["secret_token"], any(webhookSecret))
				testutil.AssertEqual(t, webhook["max_connections"], any(float64(100)))
				name := testutil.UnmarshalJSON[map[string]string](t, calls[3].Body)
				testutil.AssertEqual(t, name["name"], "Quizbot - Production")
			},
		},
		"only checks": {
			Args:  []string{"-env", "prod"},
			Stdin: answers("n", "y", "y", "n", "n", "n", "n", "n", "n"),
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.wranglerRuns(), []string{"whoami"})
				testutil.AssertEqual(t, len(ta.prod.Calls()), 0)
				testutil.AssertEqual(t, len(ta.local.Calls()), 0)
			},
		},
		"dry run": {
			Args:  []string{"-env", "prod", "-dry"},
			Stdin: answers("n", "y", "y", "y", "n", "n", "n", "n", "n"),
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.wranglerRuns(), []string{"whoami", "deploy --env prod --dry-run"})
			},
		},
		"verbose": {
			Args:         []string{"-env", "prod", "-v"},
			Stdin:        answers("n", "y", "y", "n", "n", "n", "n", "y", "n"),
			WantInStderr: "HTTP: POST http://",
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.prod.Methods(), []string{"setMyCommands"})
			},
		},
		"wrong login": {
			Args:    []string{"-env", "prod"},
			Stdin:   answers("n", "n"),
			WantErr: operator.ErrDeclined,
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.wranglerRuns(), []string{"whoami"})
			},
		},
		"wrong settings": {
			Args:    []string{"-env", "prod"},
			Stdin:   answers("n", "y", "n"),
			WantErr: operator.ErrDeclined,
		},
		"unrecognized answer": {
			Args:    []string{"-env", "prod"},
			Stdin:   answers("maybe"),
			WantErr: operator.ErrUnrecognized,
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, len(ta.wranglerRuns()), 0)
			},
		},
		"input ends": {
			Args:    []string{"-env", "prod"},
			Stdin:   answers("n", "y"),
			WantErr: operator.ErrUnrecognized,
		},
		"secret declined": {
			Args:         []string{"-env", "prod"},
			Stdin:        answers("n", "y", "y", "n", "y", "y", "n"),
			WantErr:      operator.ErrDeclined,
			WantInStdout: "Here are the secrets for inspection",
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.wranglerRuns(), []string{
					"whoami",
					"secret put SECRET__TELEGRAM_API_HASH --env prod <<< deadbeef",
				})
			},
		},
		"logout": {
			Args:  []string{"-env", "prod", "-logout"},
			Stdin: answers("n", "y", "y", "n", "n", "n", "n", "n", "n", "y"),
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.wranglerRuns(), []string{"whoami", "logout"})
			},
		},
		"logout declined": {
			Args:  []string{"-env", "prod", "-logout"},
			Stdin: answers("n", "y", "y", "n", "n", "n", "n", "n", "n", "n"),
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.wranglerRuns(), []string{"whoami"})
			},
		},
		"kv get": {
			Args:       []string{"-env", "prod", "-kv-get", "last_update"},
			WantStdout: "2026-10-01\n",
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.wranglerRuns(), []string{
					"kv:namespace list",
					"kv:key --namespace-id=ns-prod get last_update",
				})
			},
		},
		"kv get without namespace": {
			Args:       []string{"-env", "staging", "-kv-get", "last_update"},
			WantErrMsg: `no namespace called "staging"`,
		},
		"unknown environment": {
			Args:       []string{"-env", "staging"},
			Stdin:      answers("n", "y"),
			WantErrMsg: "wrangler.toml: env.staging is not set",
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, ta.wranglerRuns(), []string{"whoami"})
			},
		},
	})
}

func TestConfigureWebhookProbesWorker(t *testing.T) {
	t.Parallel()

	clitest.Run(t, func(t *testing.T) *testApp {
		ta := setup(t)
		ta.workerDown.Store(true)
		return ta
	}, map[string]clitest.Case[*testApp]{
		"worker not reachable": {
			Args:       []string{"-env", "prod"},
			Stdin:      answers("n", "y", "y", "n", "n", "n", "y"),
			WantErrMsg: "doesn't work",
			CheckFunc: func(t *testing.T, ta *testApp) {
				testutil.AssertEqual(t, len(ta.prod.Calls()), 0)
			},
		},
	})
}
