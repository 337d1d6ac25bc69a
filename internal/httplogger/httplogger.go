// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package httplogger provides a http.RoundTripper middleware that logs HTTP
// requests and responses.
//
// Bot API URLs carry the bot token in their path. It is replaced with
// [EXPUNGED] before anything is logged.
package httplogger

import (
	"net/http"
	"regexp"
	"time"

	"go.astrophena.name/devbox/internal/logger"
	"go.astrophena.name/devbox/internal/request"
)

var tokenPath = regexp.MustCompile(`/bot[^/]+/`)

// Scrub removes bot tokens from s.
func Scrub(s string) string {
	return tokenPath.ReplaceAllString(s, "/bot[EXPUNGED]/")
}

// New returns a http.RoundTripper that logs every request sent through t and
// its outcome. If t is nil, http.DefaultTransport is used.
func New(t http.RoundTripper, logf logger.Logf) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	return &loggingTransport{transport: t, logf: logger.Or(logf)}
}

// Client returns a copy of request.DefaultClient that logs requests to logf.
func Client(logf logger.Logf) *http.Client {
	c := *request.DefaultClient
	c.Transport = New(c.Transport, logf)
	return &c
}

type loggingTransport struct {
	transport http.RoundTripper
	logf      logger.Logf
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	url := Scrub(r.URL.String())
	start := time.Now()
	t.logf("HTTP: %s %s", r.Method, url)

	resp, err := t.transport.RoundTrip(r)

	took := time.Since(start).Seconds()
	if err != nil {
		t.logf("HTTP: %s %s: %s (%.3fs)", r.Method, url, Scrub(err.Error()), took)
		return resp, err
	}
	t.logf("HTTP: %s %s: %s (%.3fs)", r.Method, url, resp.Status, took)
	return resp, nil
}
