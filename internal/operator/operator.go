// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package operator pauses a flow until the person running it presses a key or
// answers a yes/no question.
package operator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

var (
	// ErrUnrecognized is returned by Confirm for anything but y or n.
	ErrUnrecognized = errors.New("didn't understand response")
	// ErrDeclined is returned by Require when the answer is n.
	ErrDeclined = errors.New("did not proceed")
)

// Gate reads operator input from a terminal or any other reader.
type Gate struct {
	in  io.Reader
	r   *bufio.Reader
	out io.Writer
}

// New returns a Gate that reads answers from in and writes prompts to out.
// If in is a terminal, AwaitKeypress switches it to raw mode.
func New(in io.Reader, out io.Writer) *Gate {
	return &Gate{in: in, r: bufio.NewReader(in), out: out}
}

type fder interface{ Fd() uintptr }

// AwaitKeypress blocks until a single key is pressed, input ends or ctx is
// done.
//
// When ctx is done first, the pending read is abandoned and the Gate must not
// be used again.
func (g *Gate) AwaitKeypress(ctx context.Context) error {
	if f, ok := g.in.(fder); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("switching terminal to raw mode: %w", err)
		}
		defer term.Restore(fd, state)
	}

	_, err := do(ctx, func() (byte, error) { return g.r.ReadByte() })
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Confirm asks question and reports whether the answer was y or n, ignoring
// case and surrounding whitespace. Any other answer, including an empty one,
// is an error wrapping [ErrUnrecognized]. There is no second chance.
func (g *Gate) Confirm(ctx context.Context, question string) (bool, error) {
	fmt.Fprint(g.out, question+" Y/N: ")
	line, err := do(ctx, func() (string, error) { return g.r.ReadString('\n') })
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	switch answer {
	case "y":
		return true, nil
	case "n":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnrecognized, answer)
}

// Require asks question and returns an error wrapping [ErrDeclined] unless
// the answer is y.
func (g *Gate) Require(ctx context.Context, question string) error {
	ok, err := g.Confirm(ctx, question)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w (answered no to %q)", ErrDeclined, question)
	}
	return nil
}

func do[T any](ctx context.Context, read func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := read()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-done:
		return res.v, res.err
	}
}
