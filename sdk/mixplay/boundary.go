// Package mixplay implements the MixPlay interactive client: short-code device
// authorization, token lifecycle, and a protocol session pumped by a background run-loop.
//
// The package talks to the outside world only through AuthService and Transport.
// NewFromConfig wires the HTTP and websocket implementations; tests and embedders can
// supply their own.
package mixplay

import "context"

// AuthService is the external authorization service. Refresh tokens crossing this
// boundary are opaque strings produced by the service itself.
type AuthService interface {
	// RequestShortCode returns the human-readable code and the private polling handle.
	RequestShortCode(ctx context.Context, clientID, clientSecret string) (code, handle string, err error)
	// AwaitShortCode long-polls until the user finishes logging in and returns a refresh token.
	AwaitShortCode(ctx context.Context, clientID, clientSecret, handle string) (refreshToken string, err error)
	// ParseRefreshToken derives the authorization value (access token) from a refresh token.
	ParseRefreshToken(refreshToken string) (authorization string, err error)
	// IsTokenStale reports whether the access token carried by refreshToken has expired.
	IsTokenStale(refreshToken string) (bool, error)
	// RefreshToken exchanges a stale refresh token for a new one.
	RefreshToken(ctx context.Context, clientID, clientSecret, staleRefreshToken string) (string, error)
}

// Transport opens protocol connections.
type Transport interface {
	Open(ctx context.Context) (Conn, error)
}

// Conn is one protocol connection context.
type Conn interface {
	// Connect authenticates and joins the experience identified by experienceID and shareCode.
	Connect(ctx context.Context, authorization, experienceID, shareCode string, setReady bool) error
	// Pump dispatches up to maxEvents queued protocol events without blocking on the network.
	Pump(maxEvents int) error
	// Close releases the connection.
	Close() error
}
