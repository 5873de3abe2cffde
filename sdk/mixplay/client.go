package mixplay

import (
	"context"
	"strings"

	"github.com/router-for-me/MixPlay/sdk/mixerr"
)

// Client bundles one TokenStore, one AuthClient and one SessionManager.
type Client struct {
	store    *TokenStore
	auth     *AuthClient
	sessions *SessionManager
}

// Option configures a Client built by New.
type Option func(*clientOptions)

type clientOptions struct {
	authService AuthService
	transport   Transport
	policy      RunLoopPolicy
	onPumpError PumpErrorHandler
	urlPrefix   string
}

// WithAuthService sets the external authorization service.
func WithAuthService(svc AuthService) Option {
	return func(o *clientOptions) { o.authService = svc }
}

// WithTransport sets the protocol transport.
func WithTransport(t Transport) Option {
	return func(o *clientOptions) { o.transport = t }
}

// WithRunLoopPolicy overrides DefaultRunLoopPolicy.
func WithRunLoopPolicy(p RunLoopPolicy) Option {
	return func(o *clientOptions) { o.policy = p }
}

// WithOnPumpError installs a callback for run-loop failures.
func WithOnPumpError(fn PumpErrorHandler) Option {
	return func(o *clientOptions) { o.onPumpError = fn }
}

// WithVerificationURLPrefix overrides DefaultVerificationURLPrefix.
func WithVerificationURLPrefix(prefix string) Option {
	return func(o *clientOptions) { o.urlPrefix = prefix }
}

// New builds a Client for the given OAuth client credentials. clientSecret may be empty.
func New(clientID, clientSecret string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, mixerr.SDK("a client id is required")
	}
	o := clientOptions{policy: DefaultRunLoopPolicy()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.authService == nil {
		return nil, mixerr.SDK("an auth service is required")
	}
	if o.transport == nil {
		return nil, mixerr.SDK("a transport is required")
	}

	store := NewTokenStore()
	auth := NewAuthClient(o.authService, store, clientID, clientSecret)
	if o.urlPrefix != "" {
		auth.SetVerificationURLPrefix(o.urlPrefix)
	}
	sessions := NewSessionManager(auth, o.transport, o.policy)
	if o.onPumpError != nil {
		sessions.SetPumpErrorHandler(o.onPumpError)
	}
	return &Client{store: store, auth: auth, sessions: sessions}, nil
}

// Auth exposes the AuthClient.
func (c *Client) Auth() *AuthClient { return c.auth }

// Sessions exposes the SessionManager.
func (c *Client) Sessions() *SessionManager { return c.sessions }

// RequestShortCode starts a short-code login.
func (c *Client) RequestShortCode(ctx context.Context) (ShortCodeChallenge, error) {
	return c.auth.RequestShortCode(ctx)
}

// AwaitCompletion waits for the short-code login to finish.
func (c *Client) AwaitCompletion(ctx context.Context) error {
	return c.auth.AwaitCompletion(ctx)
}

// IsAuthorized reports whether the client holds a usable token.
func (c *Client) IsAuthorized() bool { return c.auth.IsAuthorized() }

// Token returns the opaque blob to persist, or "" when not logged in.
func (c *Client) Token() string { return c.store.Serialize() }

// SetToken restores a persisted blob and refreshes it.
func (c *Client) SetToken(ctx context.Context, blob string) error {
	return c.auth.SetToken(ctx, blob)
}

// Refresh exchanges the held refresh token for a new one.
func (c *Client) Refresh(ctx context.Context) error { return c.auth.Refresh(ctx) }

// Logout closes any open session and forgets the tokens.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.sessions.Close(ctx); err != nil {
		return err
	}
	c.auth.Reset()
	return nil
}

// Open opens the protocol session.
func (c *Client) Open(ctx context.Context) (Session, error) { return c.sessions.Open(ctx) }

// Connect joins an experience and starts the run-loop.
func (c *Client) Connect(ctx context.Context, experienceID, shareCode string, setReady bool) error {
	return c.sessions.Connect(ctx, experienceID, shareCode, setReady)
}

// Close stops the run-loop and releases the session.
func (c *Client) Close(ctx context.Context) error { return c.sessions.Close(ctx) }

// HasValidSession reports whether a session is open with a live run-loop.
func (c *Client) HasValidSession() bool { return c.sessions.HasValidSession() }
