// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cronpoll triggers the scheduled handler of a locally served worker.
//
// wrangler dev started with --test-scheduled does not run cron triggers on its
// own. Instead it exposes them at /__scheduled, which this package calls once
// a minute.
package cronpoll

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.astrophena.name/devbox/internal/logger"
	"go.astrophena.name/devbox/internal/request"
)

// DefaultInterval matches the finest cron granularity.
const DefaultInterval = time.Minute

// URL returns the address of the scheduled handler of a worker served on
// port, asking it to run the every-minute trigger.
func URL(port int) string {
	return "http://localhost:" + strconv.Itoa(port) + "/__scheduled?cron=*+*+*+*+*"
}

// Poller invokes a scheduled handler periodically.
type Poller struct {
	// URL is the scheduled handler, see URL.
	URL string
	// Interval between invocations. Zero means DefaultInterval.
	Interval time.Duration
	// HTTPClient is used for requests. Nil means request.DefaultClient.
	HTTPClient *http.Client
	// Logf logs every invocation. Nil discards.
	Logf logger.Logf
}

// Run invokes the handler right away and then every Interval until ctx is
// done. Failed invocations are logged and otherwise ignored.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.Invoke(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Invoke calls the handler once and reports whether it succeeded.
func (p *Poller) Invoke(ctx context.Context) bool {
	logf := logger.Or(p.Logf)
	logf("_scheduled invocation")
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        p.URL,
		HTTPClient: p.HTTPClient,
	})
	if err != nil {
		if ctx.Err() == nil {
			logf("_scheduled invocation failed: %v", err)
		}
		return false
	}
	return true
}
