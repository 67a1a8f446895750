package session_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autonomeal/autonomeal/internal/telemetry/telemetrytest"
	"github.com/autonomeal/autonomeal/internal/testserver"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/autonomeal/autonomeal/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a scriptable session.API.
type fakeAPI struct {
	checkAuth func(ctx context.Context) (*sdk.AuthStatus, error)
	login     func(ctx context.Context, in sdk.LoginInput) (*sdk.AuthResult, error)
	signup    func(ctx context.Context, in sdk.SignupInput) (*sdk.AuthResult, error)
	logout    func(ctx context.Context) error

	checkCalls atomic.Int32
	persisted  atomic.Int32
	cleared    atomic.Int32
	version    atomic.Uint64

	mu           sync.Mutex
	unauthorized []sdk.UnauthorizedHandler
}

func (f *fakeAPI) Login(ctx context.Context, in sdk.LoginInput) (*sdk.AuthResult, error) {
	if f.login == nil {
		return &sdk.AuthResult{Success: true, Username: in.Username}, nil
	}
	return f.login(ctx, in)
}

func (f *fakeAPI) Signup(ctx context.Context, in sdk.SignupInput) (*sdk.AuthResult, error) {
	if f.signup == nil {
		return &sdk.AuthResult{Success: true, Username: in.Username}, nil
	}
	return f.signup(ctx, in)
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	if f.logout == nil {
		return nil
	}
	return f.logout(ctx)
}

func (f *fakeAPI) CheckAuth(ctx context.Context) (*sdk.AuthStatus, error) {
	f.checkCalls.Add(1)
	if f.checkAuth == nil {
		return &sdk.AuthStatus{}, nil
	}
	return f.checkAuth(ctx)
}

func (f *fakeAPI) PersistCredentials() error {
	f.persisted.Add(1)
	return nil
}

func (f *fakeAPI) ClearCredentials() error {
	f.cleared.Add(1)
	return nil
}

func (f *fakeAPI) CredentialVersion() uint64 {
	return f.version.Load()
}

func (f *fakeAPI) OnUnauthorized(fn sdk.UnauthorizedHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unauthorized = append(f.unauthorized, fn)
}

// rejectCredential reports a 401 for the current credential.
func (f *fakeAPI) rejectCredential() {
	f.rejectVersion(f.version.Load())
}

func (f *fakeAPI) rejectVersion(version uint64) {
	f.mu.Lock()
	fns := append([]sdk.UnauthorizedHandler{}, f.unauthorized...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(context.Background(), version)
	}
}

// recorder collects published states.
type recorder struct {
	mu     sync.Mutex
	states []session.State
}

func (r *recorder) record(s session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) statuses() []session.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Status, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.Status)
	}
	return out
}

func (r *recorder) last() session.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return session.State{}
	}
	return r.states[len(r.states)-1]
}

func TestEnsureResolvedWithoutCredential(t *testing.T) {
	api := &fakeAPI{}
	c := session.New(api)
	rec := &recorder{}
	c.Subscribe(rec.record)

	state := c.EnsureResolved(context.Background())

	assert.Equal(t, session.StatusAnonymous, state.Status)
	assert.False(t, state.Session.IsAuthenticated)
	assert.False(t, state.Resolving)
	assert.Equal(t, []session.Status{session.StatusResolving, session.StatusAnonymous}, rec.statuses())
	assert.True(t, rec.states[0].Resolving)
	assert.EqualValues(t, 1, api.cleared.Load())
}

func TestEnsureResolvedProbesOnce(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{checkAuth: func(context.Context) (*sdk.AuthStatus, error) {
		<-release
		return &sdk.AuthStatus{Authenticated: true, Username: "chef1"}, nil
	}}
	c := session.New(api)

	var wg sync.WaitGroup
	results := make([]session.State, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.EnsureResolved(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return api.checkCalls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, api.checkCalls.Load())
	for _, s := range results {
		assert.Equal(t, session.StatusAuthenticated, s.Status)
		assert.Equal(t, "chef1", s.Session.Username)
	}

	c.EnsureResolved(context.Background())
	assert.EqualValues(t, 1, api.checkCalls.Load())
	assert.EqualValues(t, 1, api.persisted.Load())
}

func TestEnsureResolvedCancelledCallerDoesNotAbortProbe(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{checkAuth: func(ctx context.Context) (*sdk.AuthStatus, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &sdk.AuthStatus{Authenticated: true, Username: "chef1"}, nil
	}}
	c := session.New(api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan session.State)
	go func() { done <- c.EnsureResolved(ctx) }()
	require.Eventually(t, func() bool { return api.checkCalls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	state := <-done
	assert.Equal(t, session.StatusResolving, state.Status)

	close(release)
	require.Eventually(t, func() bool {
		return c.State().Status == session.StatusAuthenticated
	}, time.Second, time.Millisecond)
}

func TestProbeFailureResolvesAnonymous(t *testing.T) {
	api := &fakeAPI{checkAuth: func(context.Context) (*sdk.AuthStatus, error) {
		return nil, &sdk.Error{Kind: sdk.KindNetworkUnavailable, Message: sdk.NetworkErrorMessage}
	}}
	c := session.New(api)

	sess := c.Probe(context.Background())
	assert.Equal(t, session.Session{}, sess)
	assert.Equal(t, session.StatusAnonymous, c.State().Status)
	assert.EqualValues(t, 1, api.cleared.Load())
}

func TestStaleProbeCannotReauthenticateAfterLogout(t *testing.T) {
	spans := telemetrytest.Record(t)
	release := make(chan struct{})
	api := &fakeAPI{}
	c := session.New(api)

	_, err := c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "pw"})
	require.NoError(t, err)

	api.checkAuth = func(context.Context) (*sdk.AuthStatus, error) {
		<-release
		return &sdk.AuthStatus{Authenticated: true, Username: "chef1"}, nil
	}
	rec := &recorder{}
	c.Subscribe(rec.record)

	probed := make(chan session.Session)
	go func() { probed <- c.Probe(context.Background()) }()
	require.Eventually(t, func() bool { return api.checkCalls.Load() == 1 }, time.Second, time.Millisecond)

	c.Logout(context.Background())
	require.Equal(t, session.StatusAnonymous, c.State().Status)

	close(release)
	sess := <-probed

	assert.False(t, sess.IsAuthenticated)
	assert.Equal(t, session.StatusAnonymous, c.State().Status)
	assert.Equal(t, []session.Status{session.StatusAnonymous}, rec.statuses())
	assert.Contains(t, telemetrytest.Events(spans, "session.Probe"), "session.probe.stale")
}

func TestLoginPublishesBeforeReturning(t *testing.T) {
	c := session.New(&fakeAPI{})
	rec := &recorder{}
	c.Subscribe(rec.record)

	sess, err := c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, session.Session{Username: "chef1", IsAuthenticated: true}, sess)

	last := rec.last()
	assert.Equal(t, session.StatusAuthenticated, last.Status)
	assert.Equal(t, "chef1", last.Session.Username)
	assert.False(t, last.Resolving)
	assert.Equal(t, c.State().Version, last.Version)
}

func TestResolvingWhileLoginInFlight(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{login: func(_ context.Context, in sdk.LoginInput) (*sdk.AuthResult, error) {
		<-release
		return &sdk.AuthResult{Success: true, Username: in.Username}, nil
	}}
	c := session.New(api)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "pw"})
	}()
	require.Eventually(t, func() bool { return c.State().Resolving }, time.Second, time.Millisecond)
	assert.Equal(t, session.StatusUninitialized, c.State().Status)

	close(release)
	<-done
	assert.False(t, c.State().Resolving)
	assert.Equal(t, session.StatusAuthenticated, c.State().Status)
}

func TestLoginFailureLeavesSessionAnonymous(t *testing.T) {
	rejected := &sdk.Error{Kind: sdk.KindValidation, StatusCode: http.StatusUnauthorized, Message: "Invalid username or password"}
	api := &fakeAPI{login: func(context.Context, sdk.LoginInput) (*sdk.AuthResult, error) {
		return nil, rejected
	}}
	c := session.New(api)

	sess, err := c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "wrong"})
	require.ErrorIs(t, err, sdk.ErrValidation)
	assert.Equal(t, session.Session{}, sess)
	assert.Equal(t, session.StatusAnonymous, c.State().Status)
	assert.Zero(t, api.persisted.Load())
}

func TestRegister(t *testing.T) {
	var got sdk.SignupInput
	api := &fakeAPI{signup: func(_ context.Context, in sdk.SignupInput) (*sdk.AuthResult, error) {
		got = in
		return &sdk.AuthResult{Success: true, Username: in.Username}, nil
	}}
	c := session.New(api)

	sess, err := c.Register(context.Background(), sdk.SignupInput{Username: "chef2", Password: "pw", Email: "c@example.com", Name: "Chef"})
	require.NoError(t, err)
	assert.Equal(t, "chef2", sess.Username)
	assert.Equal(t, "Chef", got.Name)
	assert.Equal(t, session.StatusAuthenticated, c.State().Status)
	assert.EqualValues(t, 1, api.persisted.Load())
}

func TestLogoutSucceedsLocallyWhenRemoteFails(t *testing.T) {
	api := &fakeAPI{logout: func(context.Context) error {
		return &sdk.Error{Kind: sdk.KindNetworkUnavailable, Message: sdk.NetworkErrorMessage}
	}}
	c := session.New(api)
	_, err := c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "pw"})
	require.NoError(t, err)

	c.Logout(context.Background())

	assert.Equal(t, session.StatusAnonymous, c.State().Status)
	assert.Equal(t, session.Session{}, c.State().Session)
	assert.EqualValues(t, 1, api.cleared.Load())
}

func TestLogoutIsNotBlockedByHangingRemote(t *testing.T) {
	api := &fakeAPI{logout: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	c := session.New(api, session.WithLogoutTimeout(20*time.Millisecond))
	_, err := c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "pw"})
	require.NoError(t, err)

	start := time.Now()
	c.Logout(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, session.StatusAnonymous, c.State().Status)
}

func TestInvalidateFromTransport(t *testing.T) {
	api := &fakeAPI{}
	c := session.New(api)
	_, err := c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "pw"})
	require.NoError(t, err)

	rec := &recorder{}
	c.Subscribe(rec.record)

	api.rejectCredential()
	assert.Equal(t, []session.Status{session.StatusAnonymous}, rec.statuses())

	api.rejectCredential()
	assert.Len(t, rec.statuses(), 1, "already anonymous sessions publish nothing")
}

func TestRejectionOfReplacedCredentialIsIgnored(t *testing.T) {
	api := &fakeAPI{}
	c := session.New(api)
	_, err := c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "pw"})
	require.NoError(t, err)

	rejected := api.version.Load()
	api.version.Add(1) // a newer login replaced the credential

	rec := &recorder{}
	c.Subscribe(rec.record)
	api.rejectVersion(rejected)

	assert.Empty(t, rec.statuses())
	assert.Equal(t, session.StatusAuthenticated, c.State().Status)
	assert.Equal(t, "chef1", c.State().Session.Username)
	assert.Zero(t, api.cleared.Load())
}

func TestSubscriberPanicDoesNotStopDelivery(t *testing.T) {
	c := session.New(&fakeAPI{})
	c.Subscribe(func(session.State) { panic("boom") })
	rec := &recorder{}
	c.Subscribe(rec.record)

	assert.NotPanics(t, func() {
		_, _ = c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "pw"})
	})
	assert.Equal(t, session.StatusAuthenticated, rec.last().Status)
}

func TestUnsubscribe(t *testing.T) {
	c := session.New(&fakeAPI{})
	rec := &recorder{}
	unsubscribe := c.Subscribe(rec.record)
	unsubscribe()
	unsubscribe()

	c.EnsureResolved(context.Background())
	assert.Empty(t, rec.statuses())
}

func TestSubscriberMayReadController(t *testing.T) {
	c := session.New(&fakeAPI{})
	var seen session.Status
	c.Subscribe(func(s session.State) { seen = c.State().Status })

	c.EnsureResolved(context.Background())
	assert.Equal(t, session.StatusAnonymous, seen)
}

// The following run against the fake service through the real client.

func newServiceController(t *testing.T) (*testserver.Server, *sdk.Client, *session.Controller) {
	t.Helper()
	srv := testserver.New(t)
	srv.AddUser("chef1", "correct-horse", "chef1@example.com", "Chef One")
	client, err := sdk.NewClient(srv.URL)
	require.NoError(t, err)
	return srv, client, session.New(client)
}

func TestLoginThenProbeYieldsSameUser(t *testing.T) {
	_, _, c := newServiceController(t)
	ctx := context.Background()

	sess, err := c.Login(ctx, sdk.LoginInput{Username: "Chef1", Password: "correct-horse"})
	require.NoError(t, err)

	probed := c.Probe(ctx)
	assert.Equal(t, sess, probed)
	assert.Equal(t, "chef1", probed.Username)
}

func TestWrongPasswordIsValidationFailure(t *testing.T) {
	_, client, c := newServiceController(t)

	_, err := c.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "wrong"})
	require.Error(t, err)

	kind, ok := sdk.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, sdk.KindValidation, kind)
	assert.Equal(t, session.StatusAnonymous, c.State().Status)
	assert.False(t, client.HasCredentials())
}

func TestProbeWithNoCredentialIsAnonymous(t *testing.T) {
	srv, _, c := newServiceController(t)

	state := c.EnsureResolved(context.Background())
	assert.Equal(t, session.StatusAnonymous, state.Status)
	assert.Equal(t, 1, srv.CheckAuthCalls())
}

func TestExpiredCredentialMidRequest(t *testing.T) {
	srv, client, c := newServiceController(t)
	ctx := context.Background()
	_, err := c.Login(ctx, sdk.LoginInput{Username: "chef1", Password: "correct-horse"})
	require.NoError(t, err)

	rec := &recorder{}
	c.Subscribe(rec.record)
	srv.ExpireSessions()

	_, err = client.ListRecipes(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sdk.ErrAuthExpired))
	assert.Equal(t, []session.Status{session.StatusAnonymous}, rec.statuses())
	assert.Equal(t, session.StatusAnonymous, c.State().Status)
}

func TestLate401DoesNotEndNewerSession(t *testing.T) {
	srv, client, c := newServiceController(t)
	srv.AddUser("chef2", "battery-staple", "chef2@example.com", "Chef Two")
	ctx := context.Background()
	_, err := c.Login(ctx, sdk.LoginInput{Username: "chef1", Password: "correct-horse"})
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	srv.Before(http.MethodGet, "/api/recipes", func() {
		close(entered)
		<-release
	})
	srv.Respond(http.MethodGet, "/api/recipes", http.StatusUnauthorized, `{"error":"Authentication required"}`)

	listed := make(chan error, 1)
	go func() {
		_, err := client.ListRecipes(ctx)
		listed <- err
	}()
	<-entered

	c.Logout(ctx)
	_, err = c.Login(ctx, sdk.LoginInput{Username: "chef2", Password: "battery-staple"})
	require.NoError(t, err)

	close(release)
	err = <-listed
	require.ErrorIs(t, err, sdk.ErrAuthExpired)

	state := c.State()
	assert.Equal(t, session.StatusAuthenticated, state.Status)
	assert.Equal(t, "chef2", state.Session.Username)
	assert.True(t, client.HasCredentials())
	assert.Equal(t, "chef2", c.Probe(ctx).Username)
}

func TestLogoutRoundTrip(t *testing.T) {
	_, client, c := newServiceController(t)
	ctx := context.Background()
	_, err := c.Login(ctx, sdk.LoginInput{Username: "chef1", Password: "correct-horse"})
	require.NoError(t, err)

	c.Logout(ctx)
	assert.False(t, client.HasCredentials())
	assert.False(t, c.Probe(ctx).IsAuthenticated)
}
