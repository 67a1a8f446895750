package config

import (
	"context"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/views"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/autonomeal/autonomeal/pkg/session"
)

// Env bundles what a command needs to talk to the service behind a gate.
type Env struct {
	Client  *sdk.Client
	Session *session.Controller
	Host    *views.Host
}

// Env builds the command environment from the shared provider.
func (c *GlobalConfig) Env(ctx context.Context) (*Env, error) {
	client, err := c.ClientProvider.SDKClient(ctx)
	if err != nil {
		return nil, err
	}
	ctrl, err := c.ClientProvider.Session(ctx)
	if err != nil {
		return nil, err
	}
	return &Env{
		Client:  client,
		Session: ctrl,
		Host:    views.NewHost(ctrl, c.Logger),
	}, nil
}
