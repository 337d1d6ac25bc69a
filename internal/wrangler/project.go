// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package wrangler reads the configuration of a Cloudflare Workers project
// and drives the wrangler CLI.
package wrangler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"go.astrophena.name/devbox/internal/request"
)

// SecretPrefix starts the name of every secret pushed to the worker.
const SecretPrefix = "SECRET__"

// Secret names shared by the deployment and local development tools.
const (
	TelegramAPIID         = "SECRET__TELEGRAM_API_ID"
	TelegramAPIHash       = "SECRET__TELEGRAM_API_HASH"
	TelegramBotToken      = "SECRET__TELEGRAM_BOT_TOKEN"
	TelegramWebhookSecret = "SECRET__TELEGRAM_BOT_WEBHOOK_SECRET_TOKEN"
)

// WebhookSecretHeader carries the webhook secret token on every update the
// Bot API delivers to the worker.
const WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Project is a worker project directory containing wrangler.toml and the
// per-environment secret files .dev.vars.<env>.
type Project struct {
	// Dir is the project directory. Empty means the current directory.
	Dir string
}

func (p Project) path(name string) string { return filepath.Join(p.Dir, name) }

func decodeFile(path string) (map[string]any, error) {
	m := make(map[string]any)
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func stringify(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

func lookup(m map[string]string, env, key string) (string, error) {
	v := m[key]
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("'%s': '%s' not found", env, key)
	}
	return v, nil
}

// Secrets returns the contents of .dev.vars.<env>.
func (p Project) Secrets(env string) (map[string]string, error) {
	m, err := decodeFile(p.path(".dev.vars." + env))
	if err != nil {
		return nil, fmt.Errorf("reading secrets for %q: %w", env, err)
	}
	return stringify(m), nil
}

// Secret returns a single secret of env. A missing or blank secret is an
// error.
func (p Project) Secret(env, key string) (string, error) {
	secrets, err := p.Secrets(env)
	if err != nil {
		return "", err
	}
	return lookup(secrets, env, key)
}

// PushableSecrets returns the sorted names of the secrets that are pushed to
// the deployed worker.
func PushableSecrets(secrets map[string]string) []string {
	var keys []string
	for k := range secrets {
		if strings.HasPrefix(k, SecretPrefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Property returns the value at a dotted path in wrangler.toml, for example
// "env.prod.name".
func (p Project) Property(path string) (any, error) {
	m, err := decodeFile(p.path("wrangler.toml"))
	if err != nil {
		return nil, err
	}
	var (
		cur     any = m
		visited string
	)
	for _, tok := range strings.Split(path, ".") {
		if visited != "" {
			visited += "."
		}
		visited += tok
		table, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("wrangler.toml: %s is not a table", strings.TrimSuffix(visited, "."+tok))
		}
		if cur, ok = table[tok]; !ok {
			return nil, fmt.Errorf("wrangler.toml: %s is not set", visited)
		}
	}
	return cur, nil
}

// Vars returns the [env.<env>.vars] table of wrangler.toml.
func (p Project) Vars(env string) (map[string]string, error) {
	v, err := p.Property("env." + env + ".vars")
	if err != nil {
		return nil, err
	}
	table, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("wrangler.toml: env.%s.vars is not a table", env)
	}
	return stringify(table), nil
}

// Var returns a single variable of env. A missing or blank variable is an
// error.
func (p Project) Var(env, key string) (string, error) {
	vars, err := p.Vars(env)
	if err != nil {
		return "", err
	}
	return lookup(vars, env, key)
}

// WorkerName returns the top-level worker name.
func (p Project) WorkerName() (string, error) {
	return p.stringProperty("name")
}

func (p Project) stringProperty(path string) (string, error) {
	v, err := p.Property(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("wrangler.toml: %s is not a string", path)
	}
	return s, nil
}

// WorkersURL returns the workers.dev URL of the worker deployed for env,
// built from env.<env>.name and the CLOUDFLARE_ACCOUNT_ID variable.
func (p Project) WorkersURL(env string) (string, error) {
	account, err := p.Var(env, "CLOUDFLARE_ACCOUNT_ID")
	if err != nil {
		return "", err
	}
	name, err := p.stringProperty("env." + env + ".name")
	if err != nil {
		return "", err
	}
	return "https://" + name + "." + account + ".workers.dev", nil
}

// ProbeWorker sends a dummy update to the worker at url, authenticated with
// the webhook secret, and returns an error unless it is accepted.
func ProbeWorker(ctx context.Context, httpc *http.Client, url, secret string) error {
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        url,
		Headers:    map[string]string{WebhookSecretHeader: secret},
		Body:       map[string]string{"stuff": "doesnt matter"},
		HTTPClient: httpc,
		Scrubber:   strings.NewReplacer(secret, "[EXPUNGED]"),
	})
	if err != nil {
		return fmt.Errorf("workers URL %s doesn't work: %w", url, err)
	}
	return nil
}

// FormatVars writes a listing of vars for the operator to inspect: keys in
// order, padded to a common width with fillers alternating between - and =
// so long rows stay readable.
func FormatVars(w io.Writer, env string, vars map[string]string) {
	fmt.Fprintf(w, "\n===ENVIRONMENT VARIABLES for '%s'===\n\n", env)

	keys := make([]string, 0, len(vars))
	width := 0
	for k := range vars {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	slices.Sort(keys)

	for i, k := range keys {
		fill := "-"
		if i%2 == 1 {
			fill = "="
		}
		fmt.Fprintf(w, "%s%s: %s\n", k, strings.Repeat(fill, width+1-len(k)), vars[k])
	}
}
