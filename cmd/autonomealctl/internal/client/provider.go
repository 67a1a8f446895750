package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/autonomeal/autonomeal/cmd/autonomealctl/internal/auth"
	"github.com/autonomeal/autonomeal/pkg/sdk"
	"github.com/autonomeal/autonomeal/pkg/session"
)

// Provider lazily builds the SDK client and the session controller shared by every command in
// one invocation. The durable credential lives in a FileStore unless another store is set.
type Provider struct {
	serverURL   string
	credDir     string
	timeout     time.Duration
	logger      *slog.Logger
	bearerToken string // ephemeral token sent alongside the session cookie (for testing/CI)
	store       sdk.CredentialStore

	sdkOnce   sync.Once
	sdkClient *sdk.Client
	sdkErr    error

	sessionOnce sync.Once
	controller  *session.Controller
}

// NewProvider constructs a Provider bound to serverURL that keeps credentials in credDir.
func NewProvider(serverURL, credDir string, timeout time.Duration, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		serverURL: serverURL,
		credDir:   credDir,
		timeout:   timeout,
		logger:    logger,
	}
}

// SetBearerToken injects an ephemeral bearer token. It is never written to the credential store.
func (p *Provider) SetBearerToken(token string) {
	p.bearerToken = token
}

// SetCredentialStore overrides the file-backed store.
func (p *Provider) SetCredentialStore(store sdk.CredentialStore) {
	p.store = store
}

// ServerURL returns the service the provider talks to.
func (p *Provider) ServerURL() string {
	return p.serverURL
}

// SDKClient returns the shared client, restoring any stored credential on first use.
func (p *Provider) SDKClient(ctx context.Context) (*sdk.Client, error) {
	p.sdkOnce.Do(func() {
		store := p.store
		if store == nil {
			fs, err := auth.NewFileStore(p.credDir)
			if err != nil {
				p.sdkErr = fmt.Errorf("failed to create credential store: %w", err)
				return
			}
			store = fs
		}

		opts := []sdk.ClientOption{
			sdk.WithHTTPClient(&http.Client{Timeout: p.timeout}),
			sdk.WithCredentialStore(store),
			sdk.WithLogger(p.logger.With("component", "sdk")),
		}
		if p.bearerToken != "" {
			opts = append(opts, sdk.WithBearerToken(p.bearerToken))
		}
		p.sdkClient, p.sdkErr = sdk.NewClient(p.serverURL, opts...)
	})

	if p.sdkErr != nil {
		return nil, p.sdkErr
	}
	return p.sdkClient, nil
}

// Session returns the shared session controller wired to the SDK client.
func (p *Provider) Session(ctx context.Context) (*session.Controller, error) {
	client, err := p.SDKClient(ctx)
	if err != nil {
		return nil, err
	}
	p.sessionOnce.Do(func() {
		p.controller = session.New(client, session.WithLogger(p.logger.With("component", "session")))
	})
	return p.controller, nil
}

// EnsureTimeout bounds ctx with timeout unless it already has a deadline.
func EnsureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	return ctxWithTimeout, cancel
}
