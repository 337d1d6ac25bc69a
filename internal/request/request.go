// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package request provides utilities for making HTTP requests.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/devbox/internal/version"
)

// DefaultClient is a [http.Client] with nice defaults.
var DefaultClient = &http.Client{
	Timeout: 10 * time.Second,
}

// Params defines the parameters needed for making an HTTP request.
type Params struct {
	// Method is the HTTP method (GET, POST, etc.) for the request.
	Method string
	// URL is the target URL of the request.
	URL string
	// Headers is a map of key-value pairs for additional request headers.
	Headers map[string]string
	// Body is any data to be sent in the request body. It will be marshaled to
	// JSON.
	Body any
	// HTTPClient is an optional custom HTTP client object to use for the request.
	// If not provided, DefaultClient will be used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

// StatusError is returned by [Make] when the server responds with a status
// other than 200 OK.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Body is the raw response body.
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %q: want 200, got %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IgnoreResponse can be used as a type parameter of [Make] when the response
// body is not interesting.
type IgnoreResponse struct{}

type scrubbedError struct {
	err      error
	scrubber *strings.Replacer
}

func (se *scrubbedError) Error() string {
	if se.scrubber != nil {
		return se.scrubber.Replace(se.err.Error())
	}
	return se.err.Error()
}

func (se *scrubbedError) Unwrap() error { return se.err }

func scrubErr(err error, scrubber *strings.Replacer) error {
	return &scrubbedError{err: err, scrubber: scrubber}
}

// Make makes a JSON HTTP request with the provided parameters and unmarshals
// the JSON response body into the specified type.
//
// Non-200 responses are reported as [*StatusError], reachable with
// [errors.As].
func Make[Response any](ctx context.Context, p Params) (Response, error) {
	var resp Response

	var br io.Reader
	if p.Body != nil {
		data, err := json.Marshal(p.Body)
		if err != nil {
			return resp, scrubErr(err, p.Scrubber)
		}
		br = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, br)
	if err != nil {
		return resp, scrubErr(err, p.Scrubber)
	}

	req.Header.Set("User-Agent", version.UserAgent())
	if br != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	httpc := DefaultClient
	if p.HTTPClient != nil {
		httpc = p.HTTPClient
	}

	res, err := httpc.Do(req)
	if err != nil {
		return resp, scrubErr(err, p.Scrubber)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return resp, scrubErr(err, p.Scrubber)
	}

	if res.StatusCode != http.StatusOK {
		return resp, scrubErr(&StatusError{
			Method:     p.Method,
			URL:        p.URL,
			StatusCode: res.StatusCode,
			Body:       b,
		}, p.Scrubber)
	}

	if _, ok := any(resp).(IgnoreResponse); ok {
		return resp, nil
	}

	if err := json.Unmarshal(b, &resp); err != nil {
		return resp, scrubErr(err, p.Scrubber)
	}

	return resp, nil
}
