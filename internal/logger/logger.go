// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger defines a type for writing to logs.
package logger

import (
	"fmt"
	"io"
	"strings"
)

// Logf is the basic logger type: a printf-like func. Like [log.Printf], the
// format need not end in a newline. Logf functions must be safe for concurrent
// use.
type Logf func(format string, args ...any)

// Write implements the [io.Writer] interface.
func (f Logf) Write(p []byte) (n int, err error) {
	f("%s", strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// Discard is a Logf that throws away the logs given to it.
func Discard(string, ...any) {}

// Or returns f, or Discard if f is nil.
func Or(f Logf) Logf {
	if f == nil {
		return Discard
	}
	return f
}

// WithPrefix returns a Logf that adds prefix to each message logged with f.
func WithPrefix(f Logf, prefix string) Logf {
	return func(format string, args ...any) {
		f(prefix+format, args...)
	}
}

// To returns a Logf that writes each message as a line to w.
func To(w io.Writer) Logf {
	return func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
		io.WriteString(w, msg)
	}
}
