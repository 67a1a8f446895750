package session

import (
	"context"
	"testing"

	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/stretchr/testify/assert"
)

type nopAPI struct{}

func (nopAPI) Login(context.Context, sdk.LoginInput) (*sdk.AuthResult, error)   { return nil, nil }
func (nopAPI) Signup(context.Context, sdk.SignupInput) (*sdk.AuthResult, error) { return nil, nil }
func (nopAPI) Logout(context.Context) error                                     { return nil }
func (nopAPI) CheckAuth(context.Context) (*sdk.AuthStatus, error)               { return &sdk.AuthStatus{}, nil }
func (nopAPI) PersistCredentials() error                                        { return nil }
func (nopAPI) ClearCredentials() error                                          { return nil }
func (nopAPI) CredentialVersion() uint64                                        { return 0 }
func (nopAPI) OnUnauthorized(sdk.UnauthorizedHandler)                           {}

func TestCanTransition(t *testing.T) {
	all := []Status{StatusUninitialized, StatusResolving, StatusAuthenticated, StatusAnonymous}
	legal := map[[2]Status]bool{
		{StatusUninitialized, StatusResolving}:     true,
		{StatusUninitialized, StatusAuthenticated}: true,
		{StatusUninitialized, StatusAnonymous}:     true,
		{StatusResolving, StatusAuthenticated}:     true,
		{StatusResolving, StatusAnonymous}:         true,
		{StatusAuthenticated, StatusAuthenticated}: true,
		{StatusAuthenticated, StatusAnonymous}:     true,
		{StatusAnonymous, StatusAuthenticated}:     true,
		{StatusAnonymous, StatusAnonymous}:         true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]Status{from, to}], canTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIllegalTransitionIsNotApplied(t *testing.T) {
	c := New(nopAPI{})
	c.mu.Lock()
	c.transitionLocked(StatusAuthenticated, Session{Username: "chef1", IsAuthenticated: true})
	before := c.state
	applied := c.transitionLocked(StatusResolving, Session{})
	after := c.state
	c.mu.Unlock()

	assert.False(t, applied)
	assert.Equal(t, before, after)
}

func TestAnonymousTransitionDropsIdentity(t *testing.T) {
	c := New(nopAPI{})
	c.mu.Lock()
	c.transitionLocked(StatusAnonymous, Session{Username: "ghost", IsAuthenticated: true})
	s := c.state
	c.mu.Unlock()

	assert.Equal(t, Session{}, s.Session)
	assert.Equal(t, uint64(1), s.Version)
}
