// Package gate decides whether a view may render given the current session. A gate shows a
// neutral placeholder until the session is settled, then either renders its target or
// navigates away exactly once. Gates re-evaluate on every session change while mounted.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/autonomeal/autonomeal/pkg/session"
)

// Decision is the outcome of evaluating a gate against a session state.
type Decision int

const (
	Pending Decision = iota
	Allow
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "pending"
	}
}

// View is something a host can render.
type View interface {
	Render(ctx context.Context) error
}

// ViewFunc adapts a function to View.
type ViewFunc func(ctx context.Context) error

func (f ViewFunc) Render(ctx context.Context) error { return f(ctx) }

// Navigator moves the host to another destination.
type Navigator interface {
	Navigate(ctx context.Context, destination string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, destination string) error

func (f NavigatorFunc) Navigate(ctx context.Context, destination string) error {
	return f(ctx, destination)
}

// Source is the session a gate observes. *session.Controller satisfies it.
type Source interface {
	State() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
	EnsureResolved(ctx context.Context) session.State
}

var _ Source = (*session.Controller)(nil)

// Blank renders nothing. It is the default placeholder.
var Blank View = ViewFunc(func(context.Context) error { return nil })

// ErrNotMounted is returned by Await on a gate that is not mounted.
var ErrNotMounted = errors.New("gate not mounted")

// Option configures a Gate.
type Option func(*Gate)

// WithPlaceholder sets the view shown while the session is unresolved.
func WithPlaceholder(v View) Option {
	return func(g *Gate) {
		if v != nil {
			g.placeholder = v
		}
	}
}

// WithLogger sets the structured logger. Defaults to discarding.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Gate guards one view. Create it with RequireAuthenticated or RequireAnonymous, Mount it when
// the view comes up and Unmount it when the view goes away.
type Gate struct {
	source      Source
	nav         Navigator
	target      View
	placeholder View
	redirect    string
	allow       func(session.Session) bool
	logger      *slog.Logger

	mu          sync.Mutex
	mounted     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	decision    Decision
	version     uint64
	redirected  bool
	settled     chan struct{}
	settledOnce *sync.Once
	onChange    []func(Decision)
}

// RequireAuthenticated renders target only for an authenticated session and sends everyone
// else to redirect.
func RequireAuthenticated(source Source, nav Navigator, target View, redirect string, opts ...Option) *Gate {
	return newGate(source, nav, target, redirect, func(s session.Session) bool {
		return s.IsAuthenticated
	}, opts)
}

// RequireAnonymous renders target only when nobody is logged in and sends authenticated users
// to redirect.
func RequireAnonymous(source Source, nav Navigator, target View, redirect string, opts ...Option) *Gate {
	return newGate(source, nav, target, redirect, func(s session.Session) bool {
		return !s.IsAuthenticated
	}, opts)
}

func newGate(source Source, nav Navigator, target View, redirect string, allow func(session.Session) bool, opts []Option) *Gate {
	g := &Gate{
		source:      source,
		nav:         nav,
		target:      target,
		placeholder: Blank,
		redirect:    redirect,
		allow:       allow,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("redirect", redirect)
	return g
}

// OnChange registers fn to run whenever the decision changes. Hosts use it to re-render.
func (g *Gate) OnChange(fn func(Decision)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = append(g.onChange, fn)
}

// Mount subscribes to the session, evaluates the current state and starts resolution in the
// background. Resolution and any pending navigation are cancelled when ctx ends or the gate is
// unmounted. Mounting a mounted gate does nothing.
func (g *Gate) Mount(ctx context.Context) {
	g.mu.Lock()
	if g.mounted {
		g.mu.Unlock()
		return
	}
	g.mounted = true
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.decision = Pending
	g.version = 0
	g.redirected = false
	g.settled = make(chan struct{})
	g.settledOnce = &sync.Once{}
	runCtx := g.ctx
	g.mu.Unlock()

	unsubscribe := g.source.Subscribe(g.evaluate)

	g.mu.Lock()
	if !g.mounted || g.ctx != runCtx {
		g.mu.Unlock()
		unsubscribe()
		return
	}
	g.unsubscribe = unsubscribe
	g.mu.Unlock()

	g.evaluate(g.source.State())
	go g.source.EnsureResolved(runCtx)
}

// Unmount cancels in-flight resolution and stops observing the session. No navigation happens
// after Unmount returns.
func (g *Gate) Unmount() {
	g.mu.Lock()
	if !g.mounted {
		g.mu.Unlock()
		return
	}
	g.mounted = false
	g.cancel()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Decision returns the current decision.
func (g *Gate) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// View returns what the host should render now: the placeholder while pending, the target once
// allowed, nil after a redirect.
func (g *Gate) View() View {
	switch g.Decision() {
	case Allow:
		return g.target
	case Redirect:
		return nil
	default:
		return g.placeholder
	}
}

// Await blocks until the gate has left Pending for the first time since Mount.
func (g *Gate) Await(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	if !g.mounted {
		g.mu.Unlock()
		return Pending, ErrNotMounted
	}
	settled := g.settled
	g.mu.Unlock()

	select {
	case <-settled:
		return g.Decision(), nil
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
}

func (g *Gate) decide(s session.State) Decision {
	if !s.Status.Settled() {
		return Pending
	}
	if g.allow(s.Session) {
		return Allow
	}
	return Redirect
}

// evaluate applies a published state. Snapshots older than the last one applied are dropped.
func (g *Gate) evaluate(s session.State) {
	g.mu.Lock()
	if !g.mounted || s.Version < g.version {
		g.mu.Unlock()
		return
	}
	g.version = s.Version

	next := g.decide(s)
	changed := next != g.decision
	g.decision = next

	navigate := false
	switch next {
	case Allow:
		g.redirected = false
	case Redirect:
		if !g.redirected {
			g.redirected = true
			navigate = true
		}
	}
	ctx := g.ctx
	settled, settledOnce := g.settled, g.settledOnce
	var hooks []func(Decision)
	if changed {
		hooks = append(hooks, g.onChange...)
	}
	g.mu.Unlock()

	if navigate && ctx.Err() == nil {
		g.logger.Debug("redirecting", "status", s.Status.String())
		if err := g.nav.Navigate(ctx, g.redirect); err != nil {
			g.logger.Warn("navigation failed", "error", err)
		}
	}
	for _, fn := range hooks {
		fn(next)
	}
	// Await returns only after the navigation and hooks for the first decision have run.
	if next != Pending {
		settledOnce.Do(func() { close(settled) })
	}
}
