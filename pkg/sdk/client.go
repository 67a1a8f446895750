package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/autonomeal/autonomeal/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
)

const (
	tracerName = "autonomeal/sdk"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 16 << 20
)

// Client performs calls against the Autonomeal service. Every call carries the durable
// session credential; a 401 from a resource endpoint clears it and notifies the registered
// unauthorized handlers before the call returns.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	jar     *credentialJar
	store   CredentialStore
	logger  *slog.Logger

	// credMu orders jar resets against store writes so a rejected credential is never
	// deleted from the store after a newer one was saved.
	credMu sync.Mutex

	mu           sync.Mutex
	unauthorized []UnauthorizedHandler
}

// UnauthorizedHandler runs when a resource call is rejected with 401 and the rejected credential
// was still the current one. version is the credential version after the rejection cleared it.
type UnauthorizedHandler func(ctx context.Context, version uint64)

// ClientOptions configures SDK client construction.
type ClientOptions struct {
	HTTPClient  *http.Client
	Store       CredentialStore
	Logger      *slog.Logger
	BearerToken string
}

// ClientOption mutates ClientOptions.
type ClientOption func(*ClientOptions)

// WithHTTPClient overrides the HTTP client used for calls. The client is copied; its cookie
// jar is replaced by the SDK's credential jar.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = client
	}
}

// WithCredentialStore sets where the durable credential is persisted. Defaults to a MemoryStore.
func WithCredentialStore(store CredentialStore) ClientOption {
	return func(opts *ClientOptions) {
		opts.Store = store
	}
}

// WithLogger sets the structured logger. Defaults to discarding.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = logger
	}
}

// WithBearerToken attaches an ephemeral bearer token in addition to the session cookie.
// It is never persisted; intended for CI and tests against a proxy that issues tokens.
func WithBearerToken(token string) ClientOption {
	return func(opts *ClientOptions) {
		opts.BearerToken = token
	}
}

// NewClient creates a client for the service at baseURL and restores any stored credential.
func NewClient(baseURL string, optFns ...ClientOption) (*Client, error) {
	opts := ClientOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}

	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if opts.HTTPClient != nil {
		clone := *opts.HTTPClient
		httpClient = &clone
	}
	if opts.BearerToken != "" {
		rt := httpClient.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}
		httpClient.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: opts.BearerToken,
				TokenType:   "Bearer",
			}),
			Base: rt,
		}
	}
	jar := newCredentialJar(base)
	httpClient.Jar = jar

	c := &Client{
		baseURL: base,
		http:    httpClient,
		jar:     jar,
		store:   opts.Store,
		logger:  opts.Logger,
	}
	c.restoreCredentials()
	return c, nil
}

// BaseURL returns the service URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// OnUnauthorized registers fn to run synchronously whenever a resource call is rejected with 401.
// A 401 for a request sent with a credential that has since been replaced or dropped does not
// reach fn.
func (c *Client) OnUnauthorized(fn UnauthorizedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unauthorized = append(c.unauthorized, fn)
}

// HasCredentials reports whether a session cookie is currently attached to requests.
func (c *Client) HasCredentials() bool {
	return !c.jar.empty()
}

// CredentialVersion identifies the credential currently attached to requests. It changes
// whenever a session cookie is issued or the jar is cleared.
func (c *Client) CredentialVersion() uint64 {
	return c.jar.currentVersion()
}

// PersistCredentials writes the current session cookies to the credential store,
// replacing whatever was there. With no cookies the stored record is deleted.
func (c *Client) PersistCredentials() error {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	cookies := c.jar.snapshot()
	if len(cookies) == 0 {
		return c.store.DeleteCredentials()
	}
	creds := &Credentials{
		ServerURL: c.baseURL.String(),
		Cookies:   cookies,
		SavedAt:   time.Now().UTC(),
	}
	if err := c.store.SaveCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// ClearCredentials drops the session cookies from memory and from the credential store.
func (c *Client) ClearCredentials() error {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	c.jar.reset()
	if err := c.store.DeleteCredentials(); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

func (c *Client) restoreCredentials() {
	creds, err := c.store.LoadCredentials()
	if err != nil {
		if !errors.Is(err, ErrNoCredentials) {
			c.logger.Warn("ignoring unreadable stored credentials", "error", err)
		}
		return
	}
	if creds.ServerURL != c.baseURL.String() {
		c.logger.Debug("stored credentials belong to another server", "stored", creds.ServerURL)
		return
	}
	if creds.IsExpired() {
		c.logger.Debug("stored credentials expired", "saved_at", creds.SavedAt)
		if err := c.store.DeleteCredentials(); err != nil {
			c.logger.Warn("failed to delete expired credentials", "error", err)
		}
		return
	}
	c.jar.restore(c.baseURL, creds.Cookies)
}

// Do sends env and decodes a successful JSON response into out (when non-nil).
func (c *Client) Do(ctx context.Context, env Envelope, out any) error {
	body, err := c.roundTrip(ctx, env)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: DefaultErrorMessage, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// roundTrip performs the call and normalizes every failure into an *Error.
func (c *Client) roundTrip(ctx context.Context, env Envelope) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "sdk.Do",
		attribute.String(telemetry.AttrHTTPMethod, env.Method),
		attribute.String(telemetry.AttrHTTPPath, env.Path),
	)
	defer span.End()

	req, requestID, err := env.request(ctx, c.baseURL)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &Error{Kind: KindValidation, Message: "Invalid request", Err: err}
	}
	span.SetAttributes(attribute.String(telemetry.AttrRequestID, requestID))
	logger := c.logger.With("method", req.Method, "path", env.Path, "request_id", requestID)

	sentWith := c.jar.currentVersion()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.Debug("request failed", "error", err, "duration", time.Since(start))
		return nil, &Error{Kind: KindNetworkUnavailable, Message: NetworkErrorMessage, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int(telemetry.AttrHTTPStatus, resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &Error{Kind: KindNetworkUnavailable, StatusCode: resp.StatusCode, Message: NetworkErrorMessage, Err: err}
	}
	logger.Debug("request completed", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized && !env.Public {
		if c.expire(ctx, sentWith, logger) {
			telemetry.AddEvent(span, "session.invalidated", attribute.String(telemetry.AttrRequestID, requestID))
		} else {
			telemetry.AddEvent(span, "session.invalidated.stale", attribute.String(telemetry.AttrRequestID, requestID))
		}
		return nil, &Error{Kind: KindAuthExpired, StatusCode: resp.StatusCode, Message: AuthExpiredMessage}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := KindServer
		if env.Public && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = KindValidation
		}
		sdkErr := &Error{Kind: kind, StatusCode: resp.StatusCode, Message: errorMessage(body)}
		span.SetAttributes(attribute.String(telemetry.AttrErrorKind, kind.String()))
		telemetry.RecordError(span, sdkErr)
		return nil, sdkErr
	}

	return body, nil
}

// expire clears the credential the request was sent with and runs the unauthorized handlers,
// in that order, so that session state is anonymous before the failing call returns to its
// caller. It reports false, touching nothing, when that credential was already superseded.
func (c *Client) expire(ctx context.Context, sentWith uint64, logger *slog.Logger) bool {
	c.credMu.Lock()
	if !c.jar.resetIf(sentWith) {
		c.credMu.Unlock()
		logger.Debug("ignoring 401 for a superseded credential", "sent_with", sentWith)
		return false
	}
	if err := c.store.DeleteCredentials(); err != nil {
		logger.Warn("failed to clear rejected credentials", "error", err)
	}
	version := c.jar.currentVersion()
	c.credMu.Unlock()

	c.mu.Lock()
	handlers := append([]UnauthorizedHandler{}, c.unauthorized...)
	c.mu.Unlock()
	logger.Info("session credential rejected", "handlers", len(handlers))
	for _, fn := range handlers {
		fn(ctx, version)
	}
	return true
}
