// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

//go:build windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
)

func shellCommand(_, command string) (string, []string) {
	return "cmd", []string{"/C", command}
}

func setSysProcAttr(*exec.Cmd) {}

// terminate kills p. Windows has no SIGTERM.
func terminate(p *os.Process) error { return p.Kill() }

func isGone(err error) bool { return errors.Is(err, os.ErrProcessDone) }
