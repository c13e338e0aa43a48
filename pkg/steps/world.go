// Package steps binds Gherkin phrases to page objects, the REST client and
// database checks.
//
// Every scenario gets a World through its context. The World owns the
// scenario state, a JS engine for ${...} expressions, an API client with
// its own token, soft assertions and, once a UI step needs one, a driver
// session.
package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/crm-e2e/pkg/api"
	"github.com/devicelab-dev/crm-e2e/pkg/config"
	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/db"
	"github.com/devicelab-dev/crm-e2e/pkg/driver"
	"github.com/devicelab-dev/crm-e2e/pkg/jsengine"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
	"github.com/devicelab-dev/crm-e2e/pkg/page"
	"github.com/devicelab-dev/crm-e2e/pkg/poll"
	"github.com/devicelab-dev/crm-e2e/pkg/softassert"
	"github.com/devicelab-dev/crm-e2e/pkg/state"
)

// otpClockSkew is subtracted from the local time an OTP was requested at
// before comparing it with created_on written by the database server.
const otpClockSkew = time.Minute

// Options configures the Worlds of one run.
type Options struct {
	Config *config.Config
	Props  *config.Properties
	Global *state.Scenario // suite-wide read-only values

	NewDriver driver.Factory // starts a UI session on first use
	DB        *db.Manager    // shared across scenarios

	FindTimeout time.Duration
	Poll        poll.Options // interval and default timeout of DB waits
	OutputDir   string       // generated upload files go below it
}

// World is the per-scenario context shared by all step groups.
type World struct {
	ID    string
	Name  string
	State *state.Scenario
	JS    *jsengine.Engine
	Soft  *softassert.Asserter
	API   *api.Client

	opts Options

	mu     sync.Mutex
	driver core.Driver
	base   *page.Base

	otpSince    time.Time
	settings    *api.ActivitySettings
	apiActivity *api.AddEditActivityRequest
}

// NewWorld creates the World of scenario id.
func NewWorld(id, name string, opts Options) *World {
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	if opts.Props == nil {
		opts.Props = &config.Properties{}
	}
	if opts.FindTimeout == 0 {
		opts.FindTimeout = opts.Config.FindTimeout.Or(config.DefaultFindTimeout)
	}
	if opts.Poll.Interval == 0 {
		opts.Poll.Interval = opts.Config.PollInterval.Or(config.DefaultPollInterval)
	}
	if opts.Poll.Timeout == 0 {
		opts.Poll.Timeout = opts.Config.PollTimeout.Or(config.DefaultPollTimeout)
	}

	w := &World{
		ID:    id,
		Name:  name,
		State: state.New(opts.Global),
		JS:    jsengine.New(),
		Soft:  softassert.New(name),
		API: api.NewClient(api.Config{
			BaseURL:    opts.Props.API.BaseURL,
			Timeout:    opts.Props.API.Timeout(),
			RetryCount: opts.Props.API.RetryCount,
		}),
		opts: opts,
	}
	return w
}

type worldKey struct{}

// WithWorld returns ctx carrying w and w's state store.
func WithWorld(ctx context.Context, w *World) context.Context {
	ctx = state.NewContext(ctx, w.State)
	return context.WithValue(ctx, worldKey{}, w)
}

// FromContext returns the World carried by ctx, or nil.
func FromContext(ctx context.Context) *World {
	w, _ := ctx.Value(worldKey{}).(*World)
	return w
}

// Environment is the environment the run targets.
func (w *World) Environment() config.Environment {
	return w.opts.Props.Environment
}

// Driver returns the UI session, or nil when no UI step has run.
func (w *World) Driver() core.Driver {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.driver
}

// Page returns the page base, starting the UI session on first use.
func (w *World) Page(ctx context.Context) (*page.Base, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.base != nil {
		return w.base, nil
	}
	if w.opts.NewDriver == nil {
		return nil, core.ErrInvalidConfig.WithMessage("no UI driver configured for this run")
	}

	logger.Info("[%s] starting UI session", w.ID)
	d, err := w.opts.NewDriver(ctx)
	if err != nil {
		return nil, fmt.Errorf("start UI session: %w", err)
	}
	w.driver = d
	w.base = page.NewBase(d, w.opts.FindTimeout)
	return w.base, nil
}

// Expand resolves ${...} in text: scenario and suite values first, then
// JavaScript expressions with every stored value in scope.
func (w *World) Expand(text string) (string, error) {
	out := w.State.Expand(text)
	if !strings.Contains(out, "${") {
		return out, nil
	}
	w.JS.SetVariables(w.State.Snapshot())
	return w.JS.Expand(out)
}

// expandOrKeep is Expand for callers that cannot report an error.
func (w *World) expandOrKeep(text string) string {
	out, err := w.Expand(text)
	if err != nil {
		return text
	}
	return out
}

// guardWrite refuses data-changing steps on a read-only environment.
func (w *World) guardWrite(what string) error {
	if !w.Environment().ReadOnly() || w.opts.Config.AllowWrites {
		return nil
	}
	return core.ErrWriteForbidden.WithMessage(fmt.Sprintf("%s is not allowed on %s (set allowWrites to override)", what, w.Environment()))
}

// repos returns the repositories of the main CRM connection.
func (w *World) repos(ctx context.Context) (*db.Repositories, error) {
	if w.opts.DB == nil {
		return nil, core.ErrDatabaseUnavailable.WithMessage("no database configured for this run")
	}
	return w.opts.DB.Repositories(ctx)
}

// waitOpts returns the default wait options, with timeout when positive.
func (w *World) waitOpts(timeout time.Duration) poll.Options {
	opts := w.opts.Poll
	if timeout > 0 {
		opts.Timeout = timeout
	}
	return opts
}

// markOTPRequested records when an OTP was asked for so the database wait
// ignores older ones.
func (w *World) markOTPRequested() {
	w.mu.Lock()
	w.otpSince = time.Now().Add(-otpClockSkew)
	w.mu.Unlock()
}

func (w *World) otpRequestedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.otpSince
}

// Close ends the UI session and the JS engine.
func (w *World) Close() error {
	w.JS.Close()

	w.mu.Lock()
	d := w.driver
	w.driver, w.base = nil, nil
	w.mu.Unlock()

	if d == nil {
		return nil
	}
	if err := d.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close UI session: %w", err)
	}
	return nil
}
