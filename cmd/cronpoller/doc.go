// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Cronpoller runs the cron triggers of a worker served by wrangler dev.

wrangler dev started with --test-scheduled exposes scheduled handlers at
/__scheduled instead of running them. Cronpoller calls it right away and then
once a minute until interrupted. Failed calls are logged.

# Usage

	$ cronpoller -port 8443
*/
package main

import (
	_ "embed"

	"go.astrophena.name/devbox/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
