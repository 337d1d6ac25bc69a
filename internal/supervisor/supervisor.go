// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package supervisor launches shell commands in the background and tears them
// down, together with everything they spawned, when the session ends.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.astrophena.name/devbox/internal/logger"
)

// waitDelay bounds how long Wait blocks on output pipes held open by
// processes that outlived the one that was launched.
const waitDelay = 5 * time.Second

// Options configure a Supervisor.
type Options struct {
	// Dir is the working directory of launched commands. Empty means the
	// current directory.
	Dir string
	// Env is appended to the environment of the current process.
	Env []string
	// Profile is a shell script sourced before every command. Empty disables
	// it. See DefaultProfile.
	Profile string
	// Logf logs launches and teardown progress. Nil discards.
	Logf logger.Logf
	// Stdout and Stderr receive the output of launched commands. Nil means
	// os.Stdout and os.Stderr.
	Stdout, Stderr io.Writer

	tree processTree
}

// DefaultProfile returns the shell profile sourced by the operator's
// interactive shells: ~/.bashrc on Unix-like systems, nothing on Windows or
// when the file doesn't exist.
func DefaultProfile() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	profile := filepath.Join(home, ".bashrc")
	if _, err := os.Stat(profile); err != nil {
		return ""
	}
	return profile
}

// Supervisor owns every process it launched.
type Supervisor struct {
	opts Options
	logf logger.Logf
	tree processTree

	mu    sync.Mutex
	procs []*Process
}

// New returns a new Supervisor.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		opts: opts,
		logf: logger.Or(opts.Logf),
		tree: opts.tree,
	}
	if s.tree == nil {
		s.tree = psTree{}
	}
	if s.opts.Stdout == nil {
		s.opts.Stdout = os.Stdout
	}
	if s.opts.Stderr == nil {
		s.opts.Stderr = os.Stderr
	}
	return s
}

// Process is a command started by Launch.
type Process struct {
	// Command is the command line as passed to Launch.
	Command string

	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// PID returns the process ID of the shell running the command.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Done returns a channel that is closed once the process exits.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error of the process. It is only meaningful after Done
// is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *Process) String() string {
	return fmt.Sprintf("%q (pid %d)", p.Command, p.PID())
}

// Launch starts command through the shell and returns without waiting for
// it. The process is detached into its own process group, so an interrupt
// from the terminal reaches it only through teardown.
func (s *Supervisor) Launch(ctx context.Context, command string) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, args := shellCommand(s.opts.Profile, command)
	cmd := exec.Command(name, args...)
	cmd.Dir = s.opts.Dir
	if len(s.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), s.opts.Env...)
	}
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	cmd.WaitDelay = waitDelay
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %q: %w", command, err)
	}

	p := &Process{
		Command: command,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()

	s.logf("Launched %s.", p)
	return p, nil
}

// Processes returns the launched processes in launch order.
func (s *Supervisor) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.procs...)
}

// Shutdown terminates every launched process. See TerminateAll.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	return s.TerminateAll(ctx, s.Processes())
}

// TerminateAll terminates procs one after another. For each process, its
// descendants are asked to terminate first, then the process itself, and
// then all of them are waited for.
//
// A failure for one process is logged and does not stop the others from
// being terminated. The returned error joins all failures.
func (s *Supervisor) TerminateAll(ctx context.Context, procs []*Process) error {
	var errs []error
	for _, p := range procs {
		if err := s.terminate(ctx, p); err != nil {
			s.logf("Failed to terminate %s: %v", p, err)
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) terminate(ctx context.Context, p *Process) error {
	s.logf("Terminating %s...", p)

	var errs []error
	children, err := descendants(ctx, s.tree, int32(p.PID()))
	if err != nil {
		errs = append(errs, fmt.Errorf("listing children: %w", err))
	}
	for _, pid := range children {
		if err := s.tree.terminate(ctx, pid); err != nil && !isGone(err) {
			errs = append(errs, fmt.Errorf("terminating child %d: %w", pid, err))
		}
	}
	select {
	case <-p.done:
	default:
		if err := terminate(p.cmd.Process); err != nil && !isGone(err) {
			errs = append(errs, err)
		}
	}

	for _, pid := range children {
		if err := s.tree.wait(ctx, pid); err != nil {
			errs = append(errs, fmt.Errorf("waiting for child %d: %w", pid, err))
		}
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		p.cmd.Process.Kill()
		errs = append(errs, fmt.Errorf("waiting: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

// descendants returns children of pid, their children and so on, parents
// before children.
func descendants(ctx context.Context, tree processTree, pid int32) ([]int32, error) {
	var (
		all   []int32
		errs  []error
		queue = []int32{pid}
	)
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		children, err := tree.children(ctx, parent)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, children...)
		queue = append(queue, children...)
	}
	return all, errors.Join(errs...)
}
