// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.astrophena.name/devbox/internal/botsetup"
	"go.astrophena.name/devbox/internal/cli"
	"go.astrophena.name/devbox/internal/devbox"
	"go.astrophena.name/devbox/internal/httplogger"
	"go.astrophena.name/devbox/internal/operator"
	"go.astrophena.name/devbox/internal/telegram"
	"go.astrophena.name/devbox/internal/wrangler"
)

func main() { cli.Main(new(app)) }

// Worker variables read from wrangler.toml.
const (
	serverURLVar    = devbox.ServerURLVar
	displayNameVar  = "TELEGRAM_BOT_DISPLAY_NAME"
	instanceNameVar = "TELEGRAM_BOT_INSTANCE_DISPLAY_NAME"
	taglineVar      = "TELEGRAM_BOT_TAGLINE"
)

type app struct {
	// configuration
	env         string
	dir         string
	dry         bool
	workerURL   string
	localBotAPI string
	verbose     bool
	logout      bool
	kvGet       string

	// for tests
	run   wrangler.Runner
	httpc *http.Client
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.env, "env", "", "wrangler `environment` to deploy.")
	fs.StringVar(&a.dir, "dir", ".", "Worker project `directory`.")
	fs.BoolVar(&a.dry, "dry", false, "Build the worker without deploying it.")
	fs.StringVar(&a.workerURL, "worker-url", "", "Webhook `URL` of the deployed worker. Defaults to its workers.dev address.")
	fs.BoolVar(&a.verbose, "v", false, "Log HTTP requests.")
	fs.BoolVar(&a.logout, "logout", false, "Offer to log out of wrangler after the last step.")
	fs.StringVar(&a.kvGet, "kv-get", "", "Print the value of `key` from the environment's KV namespace and exit.")
	fs.StringVar(&a.localBotAPI, "local-bot-api", devbox.DefaultConfig().LocalBotAPIURL(), "`URL` of the local telegram-bot-api server to move the bot off.")
}

// step runs after question is answered yes. Steps without a question always
// run.
type step struct {
	question string
	do       func(context.Context) error
}

// deployment is a single run through the deployment steps.
type deployment struct {
	*app
	stdout   io.Writer
	gate     *operator.Gate
	project  wrangler.Project
	wrangler *wrangler.CLI
}

func (a *app) Run(ctx context.Context) error {
	if a.env == "" {
		return fmt.Errorf("%w: -env is required", cli.ErrInvalidArgs)
	}
	env := cli.GetEnv(ctx)
	if len(env.Args) > 0 {
		return fmt.Errorf("%w: unexpected arguments %q", cli.ErrInvalidArgs, env.Args)
	}

	if a.verbose {
		a.httpc = httplogger.Client(env.Logf)
	}

	d := &deployment{
		app:     a,
		stdout:  env.Stdout,
		gate:    operator.New(env.Stdin, env.Stdout),
		project: wrangler.Project{Dir: a.dir},
		wrangler: &wrangler.CLI{
			Dir:    a.dir,
			Stdout: env.Stdout,
			Stderr: env.Stderr,
			Run:    a.run,
		},
	}

	if a.kvGet != "" {
		return d.printKV(ctx, a.kvGet)
	}

	steps := []step{
		{"Wrangler login?", d.wrangler.Login},
		{"", d.verifyLogin},
		{"", d.verifySettings},
		{"Deploy wrangler worker?", d.deploy},
		{"Push secrets?", d.pushSecrets},
		{"Migrate bot to telegram servers?", d.migrate},
		{"Configure webhook?", d.configureWebhook},
		{"Configure bot commands?", d.configureCommands},
		{"Configure bot name/description/shortdescription?", d.configureInfo},
	}
	if a.logout {
		steps = append(steps, step{"Wrangler logout?", d.wrangler.Logout})
	}
	for _, st := range steps {
		if st.question != "" {
			ok, err := d.gate.Confirm(ctx, st.question)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		if err := st.do(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *deployment) printKV(ctx context.Context, key string) error {
	id, err := d.wrangler.NamespaceID(ctx, d.env)
	if err != nil {
		return err
	}
	value, err := d.wrangler.KVGet(ctx, id, key)
	if err != nil {
		return err
	}
	fmt.Fprintln(d.stdout, strings.TrimRight(value, "\n"))
	return nil
}

func (d *deployment) verifyLogin(ctx context.Context) error {
	if err := d.wrangler.Whoami(ctx); err != nil {
		return err
	}
	return d.gate.Require(ctx, "Here's your wrangler login. Does it look correct?")
}

func (d *deployment) verifySettings(ctx context.Context) error {
	vars, err := d.project.Vars(d.env)
	if err != nil {
		return err
	}
	wrangler.FormatVars(d.stdout, d.env, vars)
	return d.gate.Require(ctx, fmt.Sprintf("Please inspect the settings for %s. Do they look correct?", d.env))
}

func (d *deployment) deploy(ctx context.Context) error {
	return d.wrangler.Deploy(ctx, d.env, d.dry)
}

func (d *deployment) pushSecrets(ctx context.Context) error {
	secrets, err := d.project.Secrets(d.env)
	if err != nil {
		return err
	}
	keys := wrangler.PushableSecrets(secrets)
	pushed := make(map[string]string, len(keys))
	for _, k := range keys {
		pushed[k] = secrets[k]
	}
	b, err := json.MarshalIndent(pushed, "", " ")
	if err != nil {
		return err
	}
	fmt.Fprintf(d.stdout, "Here are the secrets for inspection:\n\n%s\n\n", b)

	for _, k := range keys {
		if err := d.gate.Require(ctx, fmt.Sprintf("(in: '%s') '%s': '%s'", d.env, k, secrets[k])); err != nil {
			return fmt.Errorf("stopped setting secrets in %s: %w", d.env, err)
		}
		if err := d.wrangler.PutSecret(ctx, d.env, k, secrets[k]); err != nil {
			return err
		}
	}
	return nil
}

func (d *deployment) token() (string, error) {
	return d.project.Secret(d.env, wrangler.TelegramBotToken)
}

// client returns a client of the Bot API the deployed worker talks to.
func (d *deployment) client() (*telegram.Client, error) {
	token, err := d.token()
	if err != nil {
		return nil, err
	}
	serverURL, err := d.project.Var(d.env, serverURLVar)
	if err != nil {
		return nil, err
	}
	return telegram.New(serverURL, token, d.httpc), nil
}

func (d *deployment) migrate(ctx context.Context) error {
	token, err := d.token()
	if err != nil {
		return err
	}
	serverURL, err := d.project.Var(d.env, serverURLVar)
	if err != nil {
		return err
	}
	return botsetup.MigrateToProd(ctx, botsetup.Params{
		Token:      token,
		ProdURL:    serverURL,
		LocalURL:   d.localBotAPI,
		HTTPClient: d.httpc,
		Logf:       cli.GetEnv(ctx).Logf,
	})
}

func (d *deployment) configureWebhook(ctx context.Context) error {
	secret, err := d.project.Secret(d.env, wrangler.TelegramWebhookSecret)
	if err != nil {
		return err
	}
	url := d.workerURL
	if url == "" {
		if url, err = d.project.WorkersURL(d.env); err != nil {
			return err
		}
	}
	if err := wrangler.ProbeWorker(ctx, d.httpc, url, secret); err != nil {
		return err
	}
	c, err := d.client()
	if err != nil {
		return err
	}
	if err := botsetup.ConfigureWebhook(ctx, c, url, secret); err != nil {
		return err
	}
	fmt.Fprintf(d.stdout, "Webhook is set to %s.\n", url)
	return nil
}

func (d *deployment) configureCommands(ctx context.Context) error {
	c, err := d.client()
	if err != nil {
		return err
	}
	return botsetup.ConfigureCommands(ctx, c)
}

func (d *deployment) configureInfo(ctx context.Context) error {
	var info botsetup.Info
	for key, dst := range map[string]*string{
		displayNameVar:  &info.DisplayName,
		instanceNameVar: &info.InstanceName,
		taglineVar:      &info.Tagline,
	} {
		v, err := d.project.Var(d.env, key)
		if err != nil {
			return err
		}
		*dst = v
	}
	c, err := d.client()
	if err != nil {
		return err
	}
	return botsetup.ConfigureInfo(ctx, c, info)
}
