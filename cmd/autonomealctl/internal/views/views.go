// Package views hosts gated command output. Commands describe what they print as gate.Views;
// a Host mounts the right gate, waits for the session decision and renders either the command's
// view or whatever the gate navigated to.
package views

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/autonomeal/autonomeal/pkg/gate"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/pterm/pterm"
)

// Destinations a gate may navigate to.
const (
	Login     = "/login"
	Dashboard = "/dashboard"
)

// ErrNotLoggedIn is returned when a command that needs a session ran without one.
var ErrNotLoggedIn = errors.New("not logged in; run `autonomealctl auth login`")

// Router records the last navigation and renders its view on Flush. Navigation never renders
// directly because it happens inside session notifications.
type Router struct {
	mu          sync.Mutex
	views       map[string]gate.View
	destination string
}

var _ gate.Navigator = (*Router)(nil)

func NewRouter() *Router {
	return &Router{views: make(map[string]gate.View)}
}

// Register binds a destination to a view.
func (r *Router) Register(destination string, v gate.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[destination] = v
}

func (r *Router) Navigate(_ context.Context, destination string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[destination]; !ok {
		return fmt.Errorf("no view registered for %s", destination)
	}
	r.destination = destination
	return nil
}

// Destination returns the pending destination, if any.
func (r *Router) Destination() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destination
}

// Flush renders and clears the pending destination. It reports whether anything was rendered.
func (r *Router) Flush(ctx context.Context) (bool, error) {
	r.mu.Lock()
	dest := r.destination
	v := r.views[dest]
	r.destination = ""
	r.mu.Unlock()

	if dest == "" {
		return false, nil
	}
	return true, v.Render(ctx)
}

// Host runs command views behind gates.
type Host struct {
	Source      gate.Source
	Router      *Router
	Placeholder gate.View
	Logger      *slog.Logger
}

// NewHost wires a router with the standard login and dashboard views.
func NewHost(source gate.Source, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	router := NewRouter()
	router.Register(Login, LoginRequired())
	router.Register(Dashboard, AlreadyLoggedIn(source))
	return &Host{
		Source:      source,
		Router:      router,
		Placeholder: Resolving(),
		Logger:      logger,
	}
}

// Protected renders target only for an authenticated session. A session that expires while
// target runs ends in the login view.
func (h *Host) Protected(ctx context.Context, target gate.View) error {
	return h.run(ctx, gate.RequireAuthenticated(h.Source, h.Router, target, Login, h.options()...))
}

// AnonymousOnly renders target only when nobody is logged in.
func (h *Host) AnonymousOnly(ctx context.Context, target gate.View) error {
	return h.run(ctx, gate.RequireAnonymous(h.Source, h.Router, target, Dashboard, h.options()...))
}

func (h *Host) options() []gate.Option {
	return []gate.Option{gate.WithPlaceholder(h.Placeholder), gate.WithLogger(h.Logger)}
}

func (h *Host) run(ctx context.Context, g *gate.Gate) error {
	g.Mount(ctx)
	defer g.Unmount()

	if g.Decision() == gate.Pending {
		if err := g.View().Render(ctx); err != nil {
			h.Logger.Debug("placeholder failed", "error", err)
		}
	}
	if _, err := g.Await(ctx); err != nil {
		return err
	}

	var renderErr error
	if v := g.View(); v != nil {
		renderErr = v.Render(ctx)
	}
	if rendered, err := h.Router.Flush(ctx); rendered {
		return err
	}
	return Explain(renderErr)
}

// Explain turns SDK failures into CLI errors.
func Explain(err error) error {
	if err == nil {
		return nil
	}
	kind, ok := sdk.KindOf(err)
	if !ok {
		return err
	}
	switch kind {
	case sdk.KindAuthExpired:
		return fmt.Errorf("session expired: %w", ErrNotLoggedIn)
	case sdk.KindNetworkUnavailable:
		if cause := errors.Unwrap(err); cause != nil {
			return fmt.Errorf("%s (%w)", err.Error(), cause)
		}
		return err
	default:
		return err
	}
}

// LoginRequired is the view behind the Login destination.
func LoginRequired() gate.View {
	return gate.ViewFunc(func(context.Context) error {
		pterm.Warning.Println("You are not logged in.")
		return ErrNotLoggedIn
	})
}

// AlreadyLoggedIn is the view behind the Dashboard destination.
func AlreadyLoggedIn(source gate.Source) gate.View {
	return gate.ViewFunc(func(context.Context) error {
		pterm.Info.Printf("Logged in as %s. Run `autonomealctl auth logout` to switch accounts.\n",
			source.State().Session.Username)
		return nil
	})
}

// Resolving is the placeholder shown while the session is being checked.
func Resolving() gate.View {
	return gate.ViewFunc(func(context.Context) error {
		pterm.Debug.Println("Checking session...")
		return nil
	})
}
