// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package wrangler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
)

// Runner runs a prepared wrangler command.
type Runner func(ctx context.Context, cmd *exec.Cmd) error

// CLI invokes wrangler through npx.
type CLI struct {
	// Dir is the project directory. Empty means the current directory.
	Dir string
	// Stdout and Stderr receive the output of interactive commands. Nil means
	// os.Stdout and os.Stderr.
	Stdout, Stderr io.Writer
	// Run runs commands. Nil means exec.Cmd.Run.
	Run Runner
}

func (c *CLI) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "npx", append([]string{"wrangler"}, args...)...)
	cmd.Dir = c.Dir
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd
}

func (c *CLI) run(ctx context.Context, cmd *exec.Cmd) error {
	var err error
	if c.Run != nil {
		err = c.Run(ctx, cmd)
	} else {
		err = cmd.Run()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", strings.Join(cmd.Args[1:], " "), err)
	}
	return nil
}

func (c *CLI) output(ctx context.Context, args ...string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := c.command(ctx, args...)
	cmd.Stdout = &buf
	if err := c.run(ctx, cmd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Login opens the browser-based Cloudflare login.
func (c *CLI) Login(ctx context.Context) error { return c.run(ctx, c.command(ctx, "login")) }

// Logout forgets the Cloudflare credentials.
func (c *CLI) Logout(ctx context.Context) error { return c.run(ctx, c.command(ctx, "logout")) }

// Whoami prints the logged in Cloudflare account.
func (c *CLI) Whoami(ctx context.Context) error { return c.run(ctx, c.command(ctx, "whoami")) }

// Deploy deploys the worker for env. With dry set, wrangler only builds it.
func (c *CLI) Deploy(ctx context.Context, env string, dry bool) error {
	args := []string{"deploy", "--env", env}
	if dry {
		args = append(args, "--dry-run")
	}
	return c.run(ctx, c.command(ctx, args...))
}

// PutSecret sets a secret of the worker deployed for env. The value is piped
// to wrangler so it never appears in the process list.
func (c *CLI) PutSecret(ctx context.Context, env, key, value string) error {
	cmd := c.command(ctx, "secret", "put", key, "--env", env)
	cmd.Stdin = strings.NewReader(value)
	return c.run(ctx, cmd)
}

// KVGet returns the value of key in a KV namespace.
func (c *CLI) KVGet(ctx context.Context, namespaceID, key string) (string, error) {
	out, err := c.output(ctx, "kv:key", "--namespace-id="+namespaceID, "get", key)
	return string(out), err
}

// NamespaceID returns the ID of the KV namespace titled env.
func (c *CLI) NamespaceID(ctx context.Context, env string) (string, error) {
	out, err := c.output(ctx, "kv:namespace", "list")
	if err != nil {
		return "", err
	}
	var namespaces []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(out, &namespaces); err != nil {
		return "", fmt.Errorf("parsing namespace list: %w", err)
	}
	for _, ns := range namespaces {
		if ns.Title == env {
			return ns.ID, nil
		}
	}
	return "", fmt.Errorf("no namespace called %q", env)
}

// DevCommand returns the shell command line that serves the worker for env
// locally on port, overriding its variables with vars.
func DevCommand(env string, port int, vars map[string]string) string {
	var sb strings.Builder
	sb.WriteString("npx wrangler dev --env " + env + " --port " + strconv.Itoa(port) + " --test-scheduled --ip 127.0.0.1")
	if len(vars) == 0 {
		return sb.String()
	}
	sb.WriteString(" --var")
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		sb.WriteString(" " + k + ":" + doubleQuote(vars[k]))
	}
	return sb.String()
}

var shellEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")

func doubleQuote(s string) string { return `"` + shellEscaper.Replace(s) + `"` }
