// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Devbox runs the bot locally.

It serves the worker with wrangler dev on port 8443, starts a local
telegram-bot-api server on port 80, moves the bot from the production Bot API
onto it and points the bot's webhook at the local worker. Everything it
started is shut down when you press any key.

Run it from the worker project directory, next to wrangler.toml and
.dev.vars.<env>. The secrets file must contain:

	SECRET__TELEGRAM_API_ID
	SECRET__TELEGRAM_API_HASH
	SECRET__TELEGRAM_BOT_TOKEN
	SECRET__TELEGRAM_BOT_WEBHOOK_SECRET_TOKEN

Binding port 80 may need elevated privileges.

# Usage

	$ devbox [flags...]

Override worker variables:

	$ devbox -var DEBUG=true -vars-file local.env

Serve only the worker, leaving the bot where it is:

	$ devbox -local-bot-api=false

Also run the worker's cron triggers every minute:

	$ devbox -cron

When the bot can't be moved onto the local server, devbox logs why and keeps
the worker running in a degraded state.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/devbox/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
