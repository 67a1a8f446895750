// Package session holds the process-wide record of who is logged in. A Controller is the only
// writer of that record: it probes the service, runs login, signup and logout, and reacts to
// credentials the service rejects. Observers subscribe and receive every state change
// synchronously, before the mutating call returns.
package session

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/autonomeal/autonomeal/internal/telemetry"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	tracerName = "autonomeal/session"

	// DefaultLogoutTimeout bounds the best-effort remote logout call.
	DefaultLogoutTimeout = 5 * time.Second
)

// Status is the lifecycle position of the controller.
type Status int

const (
	StatusUninitialized Status = iota
	StatusResolving
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusResolving:
		return "resolving"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

// Settled reports whether the status is a decision gates can act on.
func (s Status) Settled() bool {
	return s == StatusAuthenticated || s == StatusAnonymous
}

// legalTransitions lists, per status, the statuses it may move to. Self-transitions on settled
// statuses are allowed so a fresh probe or re-login republishes.
var legalTransitions = map[Status][]Status{
	StatusUninitialized: {StatusResolving, StatusAuthenticated, StatusAnonymous},
	StatusResolving:     {StatusAuthenticated, StatusAnonymous},
	StatusAuthenticated: {StatusAuthenticated, StatusAnonymous},
	StatusAnonymous:     {StatusAuthenticated, StatusAnonymous},
}

func canTransition(from, to Status) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session identifies the current user. The zero value is the anonymous session.
type Session struct {
	Username        string
	IsAuthenticated bool
}

// State is a published snapshot. Version increases with every publish, so observers that
// receive snapshots out of order can drop the older one.
type State struct {
	Status  Status
	Session Session
	// Resolving is true during the initial probe and while a login or signup is in flight.
	Resolving bool
	Version   uint64
}

// API is the part of the service client the controller drives. *sdk.Client satisfies it.
type API interface {
	Login(ctx context.Context, input sdk.LoginInput) (*sdk.AuthResult, error)
	Signup(ctx context.Context, input sdk.SignupInput) (*sdk.AuthResult, error)
	Logout(ctx context.Context) error
	CheckAuth(ctx context.Context) (*sdk.AuthStatus, error)
	PersistCredentials() error
	ClearCredentials() error
	CredentialVersion() uint64
	OnUnauthorized(fn sdk.UnauthorizedHandler)
}

var _ API = (*sdk.Client)(nil)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger. Defaults to discarding.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLogoutTimeout bounds the remote half of Logout.
func WithLogoutTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.logoutTimeout = d
		}
	}
}

// Controller owns the session state machine.
type Controller struct {
	api           API
	logger        *slog.Logger
	logoutTimeout time.Duration

	mu sync.Mutex
	// generation moves on every explicit mutation (login, signup, logout, invalidation).
	// Probe results tagged with an older generation are discarded.
	generation   uint64
	state        State
	inFlight     int // logins and signups awaiting a response
	listeners    map[uint64]func(State)
	nextListener uint64
	settled      chan struct{} // closed on the first settled state
	settledOnce  sync.Once

	probes singleflight.Group
}

// New creates a controller in the uninitialized state and registers it with api so that a
// rejected credential invalidates the session.
func New(api API, opts ...Option) *Controller {
	c := &Controller{
		api:           api,
		logger:        slog.New(slog.DiscardHandler),
		logoutTimeout: DefaultLogoutTimeout,
		listeners:     make(map[uint64]func(State)),
		settled:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	api.OnUnauthorized(c.rejected)
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to receive every published state. fn runs on the goroutine that caused
// the change and must not block. The returned func removes the subscription.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// EnsureResolved runs the initial probe exactly once and waits for a settled state. Callers
// arriving while it is in flight wait for the same result; later calls return the current state
// without touching the network. If ctx ends first the probe keeps running and the returned
// state may still be unsettled.
func (c *Controller) EnsureResolved(ctx context.Context) State {
	c.mu.Lock()
	initiate := c.state.Status == StatusUninitialized
	if initiate {
		c.transitionLocked(StatusResolving, Session{})
	}
	snapshot := c.state
	c.mu.Unlock()

	if initiate {
		c.publish(snapshot)
		c.Probe(ctx)
		return c.State()
	}
	select {
	case <-c.settled:
	case <-ctx.Done():
	}
	return c.State()
}

// Probe asks the service whether the durable credential still identifies a user and applies
// the answer. Failures resolve to the anonymous session and clear the credential; Probe never
// reports an error. Concurrent probes within one generation share a single request. A result
// that arrives after a newer mutation is discarded and the newer session is returned instead.
func (c *Controller) Probe(ctx context.Context) Session {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	// The shared request must outlive any single caller's cancellation.
	probeCtx := context.WithoutCancel(ctx)
	ch := c.probes.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.runProbe(probeCtx, gen), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Session)
	case <-ctx.Done():
		return c.State().Session
	}
}

func (c *Controller) runProbe(ctx context.Context, gen uint64) Session {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "session.Probe",
		attribute.Int64(telemetry.AttrSessionGeneration, int64(gen)),
	)
	defer span.End()

	var observed Session
	status, err := c.api.CheckAuth(ctx)
	switch {
	case err != nil:
		telemetry.RecordError(span, err)
		c.logger.Debug("session probe failed", "error", err)
	case status.Authenticated:
		observed = Session{Username: status.Username, IsAuthenticated: true}
	}

	c.mu.Lock()
	if c.generation != gen {
		current := c.state.Session
		c.mu.Unlock()
		telemetry.AddEvent(span, "session.probe.stale")
		c.logger.Debug("discarding stale probe result", "probe_generation", gen)
		return current
	}
	to := StatusAnonymous
	if observed.IsAuthenticated {
		to = StatusAuthenticated
		if err := c.api.PersistCredentials(); err != nil {
			c.logger.Warn("failed to persist session credential", "error", err)
		}
	} else if err := c.api.ClearCredentials(); err != nil {
		c.logger.Warn("failed to clear session credential", "error", err)
	}
	applied := c.transitionLocked(to, observed)
	snapshot := c.state
	c.mu.Unlock()

	span.SetAttributes(attribute.String(telemetry.AttrSessionStatus, snapshot.Status.String()))
	if applied {
		c.publish(snapshot)
	}
	return snapshot.Session
}

// Login submits credentials. On success the returned identity becomes the session and the
// credential is persisted. On failure the session is anonymous and the error is the typed
// *sdk.Error from the client.
func (c *Controller) Login(ctx context.Context, input sdk.LoginInput) (Session, error) {
	return c.authenticate(ctx, "session.Login", func(ctx context.Context) (*sdk.AuthResult, error) {
		return c.api.Login(ctx, input)
	})
}

// Register creates an account and signs it in, with the same contract as Login.
func (c *Controller) Register(ctx context.Context, input sdk.SignupInput) (Session, error) {
	return c.authenticate(ctx, "session.Register", func(ctx context.Context) (*sdk.AuthResult, error) {
		return c.api.Signup(ctx, input)
	})
}

func (c *Controller) authenticate(ctx context.Context, spanName string, call func(context.Context) (*sdk.AuthResult, error)) (Session, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, spanName)
	defer span.End()

	c.mu.Lock()
	c.inFlight++
	c.refreshLocked()
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)

	result, err := call(ctx)

	c.mu.Lock()
	c.inFlight--
	c.generation++
	var sess Session
	if err != nil {
		if cerr := c.api.ClearCredentials(); cerr != nil {
			c.logger.Warn("failed to clear session credential", "error", cerr)
		}
		c.transitionLocked(StatusAnonymous, Session{})
	} else {
		sess = Session{Username: result.Username, IsAuthenticated: true}
		if perr := c.api.PersistCredentials(); perr != nil {
			c.logger.Warn("failed to persist session credential", "error", perr)
		}
		c.transitionLocked(StatusAuthenticated, sess)
	}
	snapshot = c.state
	c.mu.Unlock()

	span.SetAttributes(attribute.String(telemetry.AttrSessionStatus, snapshot.Status.String()))
	c.publish(snapshot)

	if err != nil {
		telemetry.RecordError(span, err)
		c.logger.Info("authentication failed", "error", err)
		return Session{}, err
	}
	c.logger.Info("authenticated", "username", sess.Username)
	return sess, nil
}

// Logout tells the service to end the session, then clears the local session and credential
// whatever the outcome of that call. It never fails.
func (c *Controller) Logout(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "session.Logout")
	defer span.End()

	remoteCtx, cancel := context.WithTimeout(ctx, c.logoutTimeout)
	err := c.api.Logout(remoteCtx)
	cancel()
	if err != nil {
		telemetry.RecordError(span, err)
		c.logger.Warn("remote logout failed, clearing local session anyway", "error", err)
	}

	c.mu.Lock()
	c.generation++
	if cerr := c.api.ClearCredentials(); cerr != nil {
		c.logger.Warn("failed to clear session credential", "error", cerr)
	}
	applied := c.transitionLocked(StatusAnonymous, Session{})
	snapshot := c.state
	c.mu.Unlock()

	if applied {
		c.publish(snapshot)
	}
	c.logger.Info("logged out")
}

// Invalidate forces the session to anonymous, typically because the service rejected the
// credential mid-request. It is a no-op when already anonymous.
func (c *Controller) Invalidate(ctx context.Context, reason string) {
	c.invalidate(ctx, reason, nil)
}

// rejected handles a 401 reported by the client. A credential issued after the rejection
// cleared the jar belongs to a newer login and must survive.
func (c *Controller) rejected(ctx context.Context, version uint64) {
	c.invalidate(ctx, "credential rejected by server", func() bool {
		return c.api.CredentialVersion() == version
	})
}

func (c *Controller) invalidate(ctx context.Context, reason string, current func() bool) {
	c.mu.Lock()
	if current != nil && !current() {
		c.mu.Unlock()
		_, span := telemetry.StartSpan(ctx, tracerName, "session.Invalidate")
		telemetry.AddEvent(span, "session.invalidate.stale")
		span.End()
		c.logger.Debug("ignoring rejection of a superseded credential", "reason", reason)
		return
	}
	c.generation++
	if c.state.Status == StatusAnonymous {
		c.mu.Unlock()
		return
	}
	if err := c.api.ClearCredentials(); err != nil {
		c.logger.Warn("failed to clear session credential", "error", err)
	}
	applied := c.transitionLocked(StatusAnonymous, Session{})
	snapshot := c.state
	c.mu.Unlock()

	if applied {
		_, span := telemetry.StartSpan(ctx, tracerName, "session.Invalidate",
			attribute.String(telemetry.AttrSessionStatus, snapshot.Status.String()),
		)
		span.End()
		c.logger.Info("session invalidated", "reason", reason)
		c.publish(snapshot)
	}
}

// transitionLocked moves to status with sess. Illegal moves are logged and skipped.
// c.mu must be held.
func (c *Controller) transitionLocked(to Status, sess Session) bool {
	from := c.state.Status
	if !canTransition(from, to) {
		c.logger.Warn("rejecting illegal session transition", "from", from.String(), "to", to.String())
		return false
	}
	if !to.Settled() || to == StatusAnonymous {
		sess = Session{}
	}
	c.state.Status = to
	c.state.Session = sess
	c.refreshLocked()
	if to.Settled() {
		c.settledOnce.Do(func() { close(c.settled) })
	}
	return true
}

// refreshLocked recomputes derived fields and stamps a new version. c.mu must be held.
func (c *Controller) refreshLocked() {
	c.state.Resolving = c.state.Status == StatusResolving || c.inFlight > 0
	c.state.Version++
}

// publish delivers s to every subscriber. It must be called without c.mu held so subscribers
// may read or mutate the controller.
func (c *Controller) publish(s State) {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		c.deliver(fn, s)
	}
}

func (c *Controller) deliver(fn func(State), s State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session subscriber panicked", "panic", r, "status", s.Status.String())
		}
	}()
	fn(s)
}
