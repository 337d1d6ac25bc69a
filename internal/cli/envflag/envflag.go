// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package envflag provides a wrapper around the standard flag package, allowing
// flags to be overridden by environment variables.
package envflag

import (
	"flag"
	"fmt"
	"strconv"
	"time"
)

// Type is a constraint that permits only types supported by envflag package.
type Type interface {
	int | bool | string | time.Duration
}

// Value sets up a flag with the given name, default value, and usage
// information.
//
// If the environment variable specified by envName is set to a valid value, it
// overrides the flag's default value. Flags passed on the command line take
// precedence over both.
func Value[T Type](
	fs *flag.FlagSet, getenv func(string) string,
	name, envName string, value T, usage string,
) *T {
	p := new(T)
	*p = value
	if s := getenv(envName); s != "" {
		if v, err := parse[T](s); err == nil {
			*p = v
		}
	}
	fs.Var(&flagValue[T]{p}, name, usage+" Can be overridden by "+envName+" environment variable.")
	return p
}

type flagValue[T Type] struct{ p *T }

func (f *flagValue[T]) String() string {
	if f.p == nil {
		return ""
	}
	return fmt.Sprint(*f.p)
}

func (f *flagValue[T]) Set(s string) error {
	v, err := parse[T](s)
	if err != nil {
		return err
	}
	*f.p = v
	return nil
}

// IsBoolFlag makes boolean flags usable without a value, like -cron.
func (f *flagValue[T]) IsBoolFlag() bool {
	_, ok := any(*f.p).(bool)
	return ok
}

func parse[T Type](s string) (T, error) {
	var (
		zero T
		v    any
		err  error
	)
	switch any(zero).(type) {
	case int:
		v, err = strconv.Atoi(s)
	case bool:
		v, err = strconv.ParseBool(s)
	case string:
		v = s
	case time.Duration:
		v, err = time.ParseDuration(s)
	}
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
