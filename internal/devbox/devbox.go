// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package devbox runs a local development session of the bot: the worker
// served by wrangler, a local telegram-bot-api server the bot is moved onto
// and, optionally, a poller driving the worker's cron triggers.
//
// The session lasts until the operator presses a key or interrupts it.
// Whatever was started is torn down on the way out, whether the session got
// that far successfully or not.
package devbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"go.astrophena.name/devbox/internal/botsetup"
	"go.astrophena.name/devbox/internal/cronpoll"
	"go.astrophena.name/devbox/internal/filelock"
	"go.astrophena.name/devbox/internal/logger"
	"go.astrophena.name/devbox/internal/operator"
	"go.astrophena.name/devbox/internal/portgate"
	"go.astrophena.name/devbox/internal/supervisor"
	"go.astrophena.name/devbox/internal/wrangler"
)

// ErrBusy is returned when another session holds the lock.
var ErrBusy = errors.New("another devbox session is running in this project")

// State is the phase a session is in.
type State int32

const (
	// Starting means processes are being launched.
	Starting State = iota
	// Ready means everything is running and the bot is served locally.
	Ready
	// Degraded means everything is running, but moving the bot onto the
	// local Bot API server failed. The worker still serves requests sent to
	// it directly.
	Degraded
	// Stopped means teardown finished.
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	case Stopped:
		return "stopped"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

type launcher interface {
	Launch(ctx context.Context, command string) (*supervisor.Process, error)
	Shutdown(ctx context.Context) error
}

type portWaiter interface {
	WaitOccupied(ctx context.Context, port int) error
	WaitUnoccupied(ctx context.Context, port int) error
}

type keypress interface {
	AwaitKeypress(ctx context.Context) error
}

// Options are the session's surroundings.
type Options struct {
	// Logf logs progress. Nil discards.
	Logf logger.Logf
	// Stdin is read for the keypress ending the session.
	Stdin io.Reader
	// Stdout and Stderr receive output of the launched processes and
	// operator prompts.
	Stdout, Stderr io.Writer
	// HTTPClient is used for Bot API and worker requests.
	HTTPClient *http.Client
}

// Session is a single local development session.
type Session struct {
	cfg     Config
	project wrangler.Project
	logf    logger.Logf
	stdout  io.Writer
	httpc   *http.Client

	launcher launcher
	ports    portWaiter
	operator keypress
	register func(context.Context, botsetup.Params) error

	state atomic.Int32
}

// New returns a Session serving cfg.
func New(cfg Config, opts Options) *Session {
	logf := logger.Or(opts.Logf)
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	return &Session{
		cfg:     cfg,
		project: wrangler.Project{Dir: cfg.Dir},
		logf:    logf,
		stdout:  stdout,
		httpc:   opts.HTTPClient,
		launcher: supervisor.New(supervisor.Options{
			Dir:     cfg.Dir,
			Profile: cfg.Profile,
			Logf:    logf,
			Stdout:  stdout,
			Stderr:  opts.Stderr,
		}),
		ports: &portgate.Gate{
			Interval: cfg.PollInterval,
			Logf:     logf,
		},
		operator: operator.New(stdin, stdout),
		register: botsetup.MigrateToLocal,
	}
}

// State returns the phase the session is in.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.logf("Session is %s.", st)
}

// secrets the session needs.
type secrets struct {
	apiID, apiHash, token, webhookSecret string
}

func (s *Session) readSecrets() (secrets, error) {
	var sec secrets
	if !s.cfg.LocalBotAPI {
		return sec, nil
	}
	for key, dst := range map[string]*string{
		wrangler.TelegramAPIID:         &sec.apiID,
		wrangler.TelegramAPIHash:       &sec.apiHash,
		wrangler.TelegramBotToken:      &sec.token,
		wrangler.TelegramWebhookSecret: &sec.webhookSecret,
	} {
		v, err := s.project.Secret(s.cfg.Env, key)
		if err != nil {
			return sec, err
		}
		*dst = v
	}
	return sec, nil
}

// busy names the process holding the session lock, if it left its PID.
func busy(lockPath string) error {
	if pid, err := filelock.Owner(lockPath); err == nil && pid != "" {
		return fmt.Errorf("%w (pid %s)", ErrBusy, pid)
	}
	return ErrBusy
}

// Run runs the session until the operator presses a key or ctx is done.
// Processes started before a failure are still torn down.
func (s *Session) Run(ctx context.Context) (err error) {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	s.setState(Starting)

	sec, err := s.readSecrets()
	if err != nil {
		return err
	}

	// A running session holds both ports, so waiting for them would never end.
	lockPath := filepath.Join(s.cfg.Dir, s.cfg.LockFile)
	if filelock.IsLocked(lockPath) {
		return busy(lockPath)
	}

	if err := s.ports.WaitUnoccupied(ctx, s.cfg.WorkerPort); err != nil {
		return err
	}
	if s.cfg.LocalBotAPI {
		if err := s.ports.WaitUnoccupied(ctx, s.cfg.BotAPIPort); err != nil {
			return err
		}
	}

	lock, err := filelock.Acquire(lockPath, strconv.Itoa(os.Getpid())+"\n")
	if errors.Is(err, filelock.ErrAlreadyLocked) {
		return busy(lockPath)
	}
	if err != nil {
		return fmt.Errorf("locking session: %w", err)
	}

	cronCtx, stopCron := context.WithCancel(ctx)
	var cronWG sync.WaitGroup
	defer func() {
		stopCron()
		cronWG.Wait()
		err = errors.Join(err, s.teardown(ctx), lock.Release())
		s.setState(Stopped)
	}()

	s.logf("Starting local cloudflare worker.")
	if _, err := s.launcher.Launch(ctx, wrangler.DevCommand(s.cfg.Env, s.cfg.WorkerPort, s.cfg.WorkerVars())); err != nil {
		return err
	}
	if err := s.ports.WaitOccupied(ctx, s.cfg.WorkerPort); err != nil {
		return err
	}

	if s.cfg.LocalBotAPI {
		s.logf("Starting local telegram-bot-api server.")
		workDir := filepath.Join(s.cfg.Dir, s.cfg.BotAPIWorkDir)
		if err := os.RemoveAll(workDir); err != nil {
			return fmt.Errorf("clearing Bot API working directory: %w", err)
		}
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return fmt.Errorf("creating Bot API working directory: %w", err)
		}
		if _, err := s.launcher.Launch(ctx, s.cfg.BotAPICommand(sec.apiID, sec.apiHash)); err != nil {
			return err
		}
		if err := s.ports.WaitOccupied(ctx, s.cfg.BotAPIPort); err != nil {
			return err
		}
		s.logf("Local telegram-bot-api server process forked.")
	}

	if s.cfg.Cron {
		p := &cronpoll.Poller{
			URL:        cronpoll.URL(s.cfg.WorkerPort),
			Interval:   s.cfg.CronInterval,
			HTTPClient: s.httpc,
			Logf:       logger.WithPrefix(s.logf, "cron: "),
		}
		cronWG.Go(func() { p.Run(cronCtx) })
	}

	st := Ready
	if s.cfg.LocalBotAPI {
		s.logf("Setting up bot locally.")
		if err := s.register(ctx, botsetup.Params{
			Token:         sec.token,
			WebhookSecret: sec.webhookSecret,
			ProdURL:       s.cfg.ProdBotAPI,
			LocalURL:      s.cfg.LocalBotAPIURL(),
			WorkerURL:     s.cfg.WorkerURL(),
			HTTPClient:    s.httpc,
			Logf:          s.logf,
		}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logf("Bot setup failed, the bot is not served locally: %v", err)
			st = Degraded
		}
	}
	s.setState(st)

	fmt.Fprintln(s.stdout, "You may wish to start the wrangler debugger now.")
	fmt.Fprintln(s.stdout, "Cloudflare worker and local bot api server ARE RUNNING!")
	fmt.Fprintln(s.stdout, "Press any key to shut them down.")
	if err := s.operator.AwaitKeypress(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logf("Interrupted.")
			return nil
		}
		return err
	}
	fmt.Fprintln(s.stdout, "You found the 'any key'! Bye!")
	return nil
}

func (s *Session) teardown(ctx context.Context) error {
	s.logf("Attempting cleanup.")
	ctx = context.WithoutCancel(ctx)
	if s.cfg.TeardownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TeardownTimeout)
		defer cancel()
	}
	return s.launcher.Shutdown(ctx)
}
