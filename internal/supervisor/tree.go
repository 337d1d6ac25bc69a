// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package supervisor

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const pollInterval = 50 * time.Millisecond

// processTree inspects and signals processes the supervisor did not start
// itself.
type processTree interface {
	// children returns the direct children of pid.
	children(ctx context.Context, pid int32) ([]int32, error)
	// terminate asks pid to exit.
	terminate(ctx context.Context, pid int32) error
	// wait blocks until pid has exited.
	wait(ctx context.Context, pid int32) error
}

type psTree struct{}

func (psTree) children(ctx context.Context, pid int32) ([]int32, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	children, err := p.ChildrenWithContext(ctx)
	if errors.Is(err, process.ErrorNoChildren) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pids := make([]int32, 0, len(children))
	for _, child := range children {
		pids = append(pids, child.Pid)
	}
	return pids, nil
}

func (psTree) terminate(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}
	return p.TerminateWithContext(ctx)
}

func (psTree) wait(ctx context.Context, pid int32) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if exited(ctx, pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// exited reports whether pid is gone. A zombie has exited and only waits for
// its parent to reap it, which may never happen for orphans when nothing
// reaps them.
func exited(ctx context.Context, pid int32) bool {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return true
	}
	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		return true
	}
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(status, process.Zombie)
}
