// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go.astrophena.name/devbox/internal/cli"
	"go.astrophena.name/devbox/internal/cli/envflag"
	"go.astrophena.name/devbox/internal/devbox"
	"go.astrophena.name/devbox/internal/httplogger"
	"go.astrophena.name/devbox/internal/portgate"
)

func main() { cli.Main(&app{getenv: os.Getenv}) }

type app struct {
	getenv func(string) string

	// configuration
	env         *string
	dir         string
	localBotAPI bool
	vars        varsFlag
	varsFile    string
	cron        bool
	verbose     bool
	interval    *time.Duration

	start func(context.Context, devbox.Config, devbox.Options) error
}

func (a *app) Flags(fs *flag.FlagSet) {
	getenv := a.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	a.env = envflag.Value(fs, getenv, "env", "DEVBOX_ENV", "dev", "wrangler `environment` to serve.")
	a.interval = envflag.Value(fs, getenv, "interval", "DEVBOX_POLL_INTERVAL", portgate.DefaultInterval, "Time between two port probes.")
	fs.StringVar(&a.dir, "dir", ".", "Worker project `directory`.")
	fs.BoolVar(&a.localBotAPI, "local-bot-api", true, "Start a local telegram-bot-api server and move the bot onto it.")
	fs.Var(&a.vars, "var", "Override a worker variable, as `KEY=VALUE`. Can be repeated.")
	fs.StringVar(&a.varsFile, "vars-file", "", "Read worker variable overrides from a dotenv `file`. -var takes precedence.")
	fs.BoolVar(&a.verbose, "v", false, "Log HTTP requests.")
	fs.BoolVar(&a.cron, "cron", false, "Invoke the worker's scheduled handler every minute.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if len(env.Args) > 0 {
		return fmt.Errorf("%w: unexpected arguments %q", cli.ErrInvalidArgs, env.Args)
	}

	cfg := devbox.DefaultConfig()
	cfg.Env = *a.env
	cfg.Dir = a.dir
	cfg.LocalBotAPI = a.localBotAPI
	cfg.Cron = a.cron
	cfg.PollInterval = *a.interval

	cfg.Vars = make(map[string]string)
	if a.varsFile != "" {
		fileVars, err := godotenv.Read(a.varsFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", a.varsFile, err)
		}
		maps.Copy(cfg.Vars, fileVars)
	}
	maps.Copy(cfg.Vars, a.vars)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", cli.ErrInvalidArgs, err)
	}

	opts := devbox.Options{
		Logf:   env.Logf,
		Stdin:  env.Stdin,
		Stdout: env.Stdout,
		Stderr: env.Stderr,
	}
	if a.verbose {
		opts.HTTPClient = httplogger.Client(env.Logf)
	}

	start := a.start
	if start == nil {
		start = func(ctx context.Context, cfg devbox.Config, opts devbox.Options) error {
			return devbox.New(cfg, opts).Run(ctx)
		}
	}
	return start(ctx, cfg, opts)
}

// varsFlag collects repeated KEY=VALUE flags.
type varsFlag map[string]string

func (v *varsFlag) String() string {
	if v == nil || len(*v) == 0 {
		return ""
	}
	var pairs []string
	for _, k := range slices.Sorted(maps.Keys(*v)) {
		pairs = append(pairs, k+"="+(*v)[k])
	}
	return strings.Join(pairs, " ")
}

func (v *varsFlag) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("must be in format KEY=VALUE, was: %s", s)
	}
	if *v == nil {
		*v = make(varsFlag)
	}
	(*v)[key] = value
	return nil
}
