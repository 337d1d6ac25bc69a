// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/devbox/internal/testutil"
)

func skipIfNoBash(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/bash")
	}
}

func TestShellCommand(t *testing.T) {
	t.Parallel()
	skipIfNoBash(t)

	cases := map[string]struct {
		profile  string
		command  string
		wantArgs []string
	}{
		"no profile": {
			command:  "sleep 1",
			wantArgs: []string{"-c", "sleep 1"},
		},
		"profile": {
			profile:  "/home/user/.bashrc",
			command:  "npx wrangler dev --env dev",
			wantArgs: []string{"-c", "source '/home/user/.bashrc' && npx wrangler dev --env dev"},
		},
		"profile with spaces and quotes": {
			profile:  "/home/o'brien/my home/.bashrc",
			command:  "sleep 1",
			wantArgs: []string{"-c", `source '/home/o'\''brien/my home/.bashrc' && sleep 1`},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			gotName, gotArgs := shellCommand(tc.profile, tc.command)
			testutil.AssertEqual(t, gotName, "/bin/bash")
			testutil.AssertEqual(t, gotArgs, tc.wantArgs)
		})
	}
}

func TestDefaultProfile(t *testing.T) {
	skipIfNoBash(t)

	home := t.TempDir()
	t.Setenv("HOME", home)
	testutil.AssertEqual(t, DefaultProfile(), "")

	profile := filepath.Join(home, ".bashrc")
	if err := os.WriteFile(profile, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, DefaultProfile(), profile)
}

func TestLaunchSourcesProfile(t *testing.T) {
	t.Parallel()
	skipIfNoBash(t)

	profile := filepath.Join(t.TempDir(), "my home", ".bashrc")
	if err := os.MkdirAll(filepath.Dir(profile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(profile, []byte("export DEVBOX_TEST_PROFILE=sourced\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	s := New(Options{
		Dir:     t.TempDir(),
		Profile: profile,
		Stdout:  &stdout,
	})
	p, err := s.Launch(context.Background(), "echo $DEVBOX_TEST_PROFILE")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
	if err := p.Err(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, stdout.String(), "sourced\n")
}

func TestLaunchOutputAndEnv(t *testing.T) {
	t.Parallel()
	skipIfNoBash(t)

	var stdout bytes.Buffer
	s := New(Options{
		Dir:    t.TempDir(),
		Env:    []string{"DEVBOX_TEST_GREETING=hello"},
		Stdout: &stdout,
	})
	p, err := s.Launch(context.Background(), "echo $DEVBOX_TEST_GREETING")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
	if err := p.Err(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, stdout.String(), "hello\n")
	if procs := s.Processes(); len(procs) != 1 || procs[0] != p {
		t.Fatalf("Processes() = %v, want [%v]", procs, p)
	}
}

func TestLaunchCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(Options{})
	if _, err := s.Launch(ctx, "sleep 100"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Launch() error = %v, want %v", err, context.Canceled)
	}
	if len(s.Processes()) != 0 {
		t.Fatal("cancelled launch was recorded")
	}
}

// failingTree fails to list children of one process and forwards everything
// else to the real process table.
type failingTree struct {
	psTree
	failPID int32

	mu     sync.Mutex
	listed []int32
}

func (f *failingTree) children(ctx context.Context, pid int32) ([]int32, error) {
	f.mu.Lock()
	f.listed = append(f.listed, pid)
	f.mu.Unlock()
	if pid == f.failPID {
		return nil, fmt.Errorf("listing children of %d: permission denied", pid)
	}
	return f.psTree.children(ctx, pid)
}

func TestTerminateAllContinuesAfterFailure(t *testing.T) {
	t.Parallel()
	skipIfNoBash(t)

	const n = 4
	for k := range n {
		t.Run(fmt.Sprintf("fail at %d", k), func(t *testing.T) {
			t.Parallel()

			tree := &failingTree{}
			var logs strings.Builder
			var logMu sync.Mutex
			s := New(Options{
				Logf: func(format string, args ...any) {
					logMu.Lock()
					defer logMu.Unlock()
					fmt.Fprintf(&logs, format+"\n", args...)
				},
				tree: tree,
			})
			for range n {
				if _, err := s.Launch(context.Background(), "sleep 100"); err != nil {
					t.Fatal(err)
				}
			}
			procs := s.Processes()
			tree.failPID = int32(procs[k].PID())

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := s.TerminateAll(ctx, procs)
			if err == nil {
				t.Fatal("TerminateAll() returned no error")
			}
			if !strings.Contains(err.Error(), "permission denied") {
				t.Fatalf("TerminateAll() error = %v, want the injected failure", err)
			}

			for i, p := range procs {
				select {
				case <-p.Done():
				default:
					t.Errorf("process %d is still running", i)
				}
			}
			var wantListed []int32
			for _, p := range procs {
				wantListed = append(wantListed, int32(p.PID()))
			}
			tree.mu.Lock()
			testutil.AssertEqual(t, tree.listed, wantListed)
			tree.mu.Unlock()

			logMu.Lock()
			defer logMu.Unlock()
			if !strings.Contains(logs.String(), "Failed to terminate") {
				t.Errorf("failure was not logged:\n%s", logs.String())
			}
		})
	}
}

func TestTerminateAllProcessTree(t *testing.T) {
	t.Parallel()
	skipIfNoBash(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := New(Options{})
	p, err := s.Launch(ctx, "sleep 100 & sleep 100")
	if err != nil {
		t.Fatal(err)
	}

	// Wait until the shell has forked the background sleep.
	var children []int32
	for {
		children, err = descendants(ctx, psTree{}, int32(p.PID()))
		if err != nil {
			t.Fatal(err)
		}
		if len(children) > 0 {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatal("background sleep never started")
		case <-time.After(pollInterval):
		}
	}

	if err := s.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	for _, pid := range append(children, int32(p.PID())) {
		if !exited(ctx, pid) {
			t.Errorf("process %d is still running", pid)
		}
	}
}

func TestTerminateAllExitedProcess(t *testing.T) {
	t.Parallel()
	skipIfNoBash(t)

	s := New(Options{})
	p, err := s.Launch(context.Background(), "true")
	if err != nil {
		t.Fatal(err)
	}
	<-p.Done()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestDescendants(t *testing.T) {
	t.Parallel()

	tree := fakeTree{
		1: {2, 3},
		2: {4},
		4: {5},
	}
	got, err := descendants(context.Background(), tree, 1)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, []int32{2, 3, 4, 5})
}

type fakeTree map[int32][]int32

func (f fakeTree) children(_ context.Context, pid int32) ([]int32, error) { return f[pid], nil }
func (fakeTree) terminate(context.Context, int32) error                   { return nil }
func (fakeTree) wait(context.Context, int32) error                        { return nil }
