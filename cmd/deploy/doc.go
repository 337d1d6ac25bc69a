// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Deploy walks through a production deployment of the bot.

Every step asks for confirmation first, so any of them can be skipped:

 1. Log in to Cloudflare with wrangler.
 2. Check the logged in account.
 3. Check the worker variables of the environment in wrangler.toml.
 4. Deploy the worker.
 5. Push every SECRET__ value from .dev.vars.<env> as a worker secret, each
    confirmed separately.
 6. Move the bot off a local telegram-bot-api server back to the Bot API.
 7. Point the webhook at the deployed worker, after checking that the worker
    accepts the webhook secret.
 8. Set the bot's commands.
 9. Set the bot's name and descriptions from TELEGRAM_BOT_DISPLAY_NAME,
    TELEGRAM_BOT_INSTANCE_DISPLAY_NAME and TELEGRAM_BOT_TAGLINE.

Answer y or n. Anything else stops the deployment, as does answering n to a
question asking whether something looks correct.

# Usage

	$ deploy -env prod

Build the worker without uploading it:

	$ deploy -env prod -dry

Also offer to log out of wrangler at the end:

	$ deploy -env prod -logout

Print a value from the worker's KV namespace, which is titled after the
environment, without deploying anything:

	$ deploy -env prod -kv-get last_update
*/
package main

import (
	_ "embed"

	"go.astrophena.name/devbox/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
