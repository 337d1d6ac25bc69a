// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"go.astrophena.name/devbox/internal/cli"
	"go.astrophena.name/devbox/internal/cronpoll"
	"go.astrophena.name/devbox/internal/devbox"
)

func main() { cli.Main(new(app)) }

type app struct {
	// configuration
	port     int
	interval time.Duration

	httpc *http.Client
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.IntVar(&a.port, "port", devbox.WorkerPort, "`Port` the worker is served on.")
	fs.DurationVar(&a.interval, "interval", cronpoll.DefaultInterval, "Time between two invocations.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if len(env.Args) > 0 {
		return fmt.Errorf("%w: unexpected arguments %q", cli.ErrInvalidArgs, env.Args)
	}
	if a.port <= 0 || a.port > 65535 {
		return fmt.Errorf("%w: port %d is out of range", cli.ErrInvalidArgs, a.port)
	}
	if a.interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", cli.ErrInvalidArgs)
	}

	p := &cronpoll.Poller{
		URL:        cronpoll.URL(a.port),
		Interval:   a.interval,
		HTTPClient: a.httpc,
		Logf:       env.Logf,
	}
	return p.Run(ctx)
}
