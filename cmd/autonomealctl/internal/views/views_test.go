package views

import (
	"context"
	"errors"
	"testing"

	"github.com/autonomeal/autonomeal/internal/testserver"
	"github.com/autonomeal/autonomeal/pkg/gate"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/autonomeal/autonomeal/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHost(t *testing.T) (*testserver.Server, *sdk.Client, *session.Controller, *Host) {
	t.Helper()
	srv := testserver.New(t)
	srv.AddUser("chef1", "correct-horse", "chef1@example.com", "Chef One")
	client, err := sdk.NewClient(srv.URL)
	require.NoError(t, err)
	ctrl := session.New(client)
	host := NewHost(ctrl, nil)
	host.Placeholder = gate.Blank
	return srv, client, ctrl, host
}

func TestRouterNavigateAndFlush(t *testing.T) {
	r := NewRouter()
	rendered := 0
	r.Register("/a", gate.ViewFunc(func(context.Context) error { rendered++; return nil }))

	assert.Error(t, r.Navigate(context.Background(), "/unknown"))
	require.NoError(t, r.Navigate(context.Background(), "/a"))
	assert.Equal(t, "/a", r.Destination())
	assert.Zero(t, rendered, "navigation only records")

	ok, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, rendered)
	assert.Empty(t, r.Destination())

	ok, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProtectedWithoutSessionShowsLogin(t *testing.T) {
	_, _, _, host := newHost(t)
	ran := false

	err := host.Protected(context.Background(), gate.ViewFunc(func(context.Context) error {
		ran = true
		return nil
	}))
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.False(t, ran)
}

func TestProtectedWithSessionRunsTarget(t *testing.T) {
	_, _, ctrl, host := newHost(t)
	_, err := ctrl.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "correct-horse"})
	require.NoError(t, err)

	ran := false
	err = host.Protected(context.Background(), gate.ViewFunc(func(context.Context) error {
		ran = true
		return nil
	}))
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestProtectedSessionExpiringMidCommand(t *testing.T) {
	srv, client, ctrl, host := newHost(t)
	ctx := context.Background()
	_, err := ctrl.Login(ctx, sdk.LoginInput{Username: "chef1", Password: "correct-horse"})
	require.NoError(t, err)
	srv.ExpireSessions()

	err = host.Protected(ctx, gate.ViewFunc(func(ctx context.Context) error {
		_, err := client.ListRecipes(ctx)
		return err
	}))
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, session.StatusAnonymous, ctrl.State().Status)
}

func TestAnonymousOnlyWhenLoggedIn(t *testing.T) {
	_, _, ctrl, host := newHost(t)
	_, err := ctrl.Login(context.Background(), sdk.LoginInput{Username: "chef1", Password: "correct-horse"})
	require.NoError(t, err)

	ran := false
	err = host.AnonymousOnly(context.Background(), gate.ViewFunc(func(context.Context) error {
		ran = true
		return nil
	}))
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestAnonymousOnlyRunsLoginFlow(t *testing.T) {
	_, _, ctrl, host := newHost(t)
	ctx := context.Background()

	err := host.AnonymousOnly(ctx, gate.ViewFunc(func(ctx context.Context) error {
		_, err := ctrl.Login(ctx, sdk.LoginInput{Username: "chef1", Password: "correct-horse"})
		return err
	}))
	require.NoError(t, err, "a successful login inside the view lands on the dashboard view")
	assert.Equal(t, session.StatusAuthenticated, ctrl.State().Status)
}

func TestExplain(t *testing.T) {
	assert.NoError(t, Explain(nil))

	plain := errors.New("plain")
	assert.Same(t, plain, Explain(plain))

	expired := &sdk.Error{Kind: sdk.KindAuthExpired, Message: sdk.AuthExpiredMessage}
	assert.ErrorIs(t, Explain(expired), ErrNotLoggedIn)

	server := &sdk.Error{Kind: sdk.KindServer, Message: "Recipe not found"}
	assert.Equal(t, "Recipe not found", Explain(server).Error())

	network := &sdk.Error{Kind: sdk.KindNetworkUnavailable, Message: sdk.NetworkErrorMessage, Err: errors.New("connection refused")}
	assert.Contains(t, Explain(network).Error(), "connection refused")
}
