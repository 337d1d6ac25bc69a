// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package portgate blocks until a local TCP port starts or stops accepting
// connections.
//
// Waits have no deadline of their own. Bound them with the context.
package portgate

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.astrophena.name/devbox/internal/logger"
)

// DefaultInterval is the default time between two probes.
const DefaultInterval = 500 * time.Millisecond

const dialTimeout = time.Second

// Gate polls ports on a host. The zero value polls localhost every
// [DefaultInterval] without logging.
type Gate struct {
	// Host defaults to "localhost".
	Host string
	// Interval defaults to DefaultInterval.
	Interval time.Duration
	// Logf receives a progress line on every probe.
	Logf logger.Logf
	// Dial is used to probe ports. Defaults to a net.Dialer with a short
	// timeout.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// Probe reports whether something accepts TCP connections on port of
// localhost.
func Probe(ctx context.Context, port int) bool {
	return new(Gate).Probe(ctx, port)
}

// Probe reports whether something accepts TCP connections on port.
func (g *Gate) Probe(ctx context.Context, port int) bool {
	dial := g.Dial
	if dial == nil {
		d := &net.Dialer{Timeout: dialTimeout}
		dial = d.DialContext
	}
	host := g.Host
	if host == "" {
		host = "localhost"
	}
	conn, err := dial(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitOccupied blocks until port accepts connections or ctx is done.
func (g *Gate) WaitOccupied(ctx context.Context, port int) error {
	return g.wait(ctx, port, true)
}

// WaitUnoccupied blocks until port stops accepting connections or ctx is
// done.
func (g *Gate) WaitUnoccupied(ctx context.Context, port int) error {
	return g.wait(ctx, port, false)
}

func (g *Gate) wait(ctx context.Context, port int, occupied bool) error {
	logf := logger.Or(g.Logf)
	interval := g.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.Probe(ctx, port) == occupied {
			if occupied {
				logf("Port %d is now in use.", port)
			} else {
				logf("Port %d is now NOT in use.", port)
			}
			return nil
		}
		if occupied {
			logf("Port %d is not in use. Checking again in %v.", port, interval)
		} else {
			logf("Port %d is still IN USE. Checking again in %v.", port, interval)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
