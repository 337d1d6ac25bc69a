// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegramtest provides a fake Bot API server for tests.
package telegramtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Token is a typical Bot API token, copied from docs.
const Token = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

// Call is a recorded Bot API call.
type Call struct {
	HTTPMethod string
	Method     string
	Body       json.RawMessage
}

type response struct {
	status int
	body   string
}

// Server is a fake Bot API server. Unless overridden with [Server.Handle],
// every method succeeds.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	calls     []Call
	responses map[string]response
}

// NewServer starts a fake Bot API server accepting [Token]. It is closed when
// the test finishes.
func NewServer(t *testing.T) *Server {
	s := &Server{
		responses: map[string]response{
			"getMe":          {http.StatusOK, `{"ok":true,"result":{"id":123456,"is_bot":true,"first_name":"Test Bot","username":"test_bot"}}`},
			"getWebhookInfo": {http.StatusOK, `{"ok":true,"result":{"url":"http://127.0.0.1:8443","pending_update_count":0}}`},
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// Handle makes the server answer method with status and body.
func (s *Server) Handle(method string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method] = response{status, body}
}

// Calls returns the calls received so far, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Methods returns names of the methods called so far, in order.
func (s *Server) Methods() []string {
	var methods []string
	for _, c := range s.Calls() {
		methods = append(methods, c.Method)
	}
	return methods
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	rest, ok := strings.CutPrefix(r.URL.Path, "/bot")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		return
	}
	token, method, ok := strings.Cut(rest, "/")
	if !ok || token != Token {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
		return
	}

	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.calls = append(s.calls, Call{HTTPMethod: r.Method, Method: method, Body: body})
	resp, ok := s.responses[method]
	s.mu.Unlock()

	if !ok {
		resp = response{http.StatusOK, `{"ok":true,"result":true}`}
	}
	w.WriteHeader(resp.status)
	io.WriteString(w, resp.body)
}
