package mixplay

import (
	"context"
	"strings"
	"sync"

	"github.com/router-for-me/MixPlay/sdk/mixerr"
	log "github.com/sirupsen/logrus"
)

// DefaultVerificationURLPrefix is prepended to the short code to build the login URL.
const DefaultVerificationURLPrefix = "https://www.mixer.com/go?code="

const (
	maxShortCodeLen       = 20
	maxShortCodeHandleLen = 1024
)

// AuthState is the state of the short-code handshake.
type AuthState int

const (
	// AuthNoChallenge means no short code has been requested yet.
	AuthNoChallenge AuthState = iota
	// AuthChallengeIssued means a short code is outstanding and AwaitCompletion may be called.
	AuthChallengeIssued
	// AuthAuthorized means a usable TokenPair is held.
	AuthAuthorized
	// AuthFailed means a handshake or restore failed while no authorized pair was held.
	// A failed refresh of an authorized pair stays AuthAuthorized.
	AuthFailed
)

func (s AuthState) String() string {
	switch s {
	case AuthNoChallenge:
		return "no-challenge"
	case AuthChallengeIssued:
		return "challenge-issued"
	case AuthAuthorized:
		return "authorized"
	case AuthFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ShortCodeChallenge is what the user needs to authorize this device.
// The polling handle stays inside AuthClient.
type ShortCodeChallenge struct {
	// Code is the short human-typable code.
	Code string
	// VerificationURL is where the user enters (or confirms) the code.
	VerificationURL string
}

// AuthClient drives the short-code handshake and token refresh. It never keeps its
// own copy of the tokens; the TokenStore is the only owner.
type AuthClient struct {
	mu           sync.Mutex
	svc          AuthService
	store        *TokenStore
	clientID     string
	clientSecret string
	urlPrefix    string

	state  AuthState
	handle string
}

// NewAuthClient builds an AuthClient that stores tokens in store.
func NewAuthClient(svc AuthService, store *TokenStore, clientID, clientSecret string) *AuthClient {
	return &AuthClient{
		svc:          svc,
		store:        store,
		clientID:     clientID,
		clientSecret: clientSecret,
		urlPrefix:    DefaultVerificationURLPrefix,
	}
}

// SetVerificationURLPrefix overrides DefaultVerificationURLPrefix.
func (a *AuthClient) SetVerificationURLPrefix(prefix string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if strings.TrimSpace(prefix) != "" {
		a.urlPrefix = prefix
	}
}

// State returns the handshake state.
func (a *AuthClient) State() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsAuthorized reports whether a usable token is held.
func (a *AuthClient) IsAuthorized() bool {
	return a.State() == AuthAuthorized
}

// AccessToken returns the current authorization value.
func (a *AuthClient) AccessToken() (string, error) {
	if !a.IsAuthorized() {
		return "", mixerr.New(mixerr.InvalidOperation, "mixplay: not authenticated")
	}
	pair, ok := a.store.Current()
	if !ok {
		return "", mixerr.New(mixerr.InvalidOperation, "mixplay: not authenticated")
	}
	return pair.AccessToken, nil
}

// IsTokenStale asks the service whether the held token has expired.
// SetToken does not consult it and always refreshes.
func (a *AuthClient) IsTokenStale() (bool, error) {
	pair, ok := a.store.Current()
	if !ok {
		return false, mixerr.New(mixerr.InvalidOperation, "mixplay: no token held")
	}
	stale, err := a.svc.IsTokenStale(pair.RefreshToken)
	if err != nil {
		return false, mixerr.Wrap(err)
	}
	return stale, nil
}

// RequestShortCode asks the service for a new short code. Any previous handle is discarded.
// An authorized client stays authorized until the new handshake completes.
func (a *AuthClient) RequestShortCode(ctx context.Context) (ShortCodeChallenge, error) {
	a.mu.Lock()
	a.handle = ""
	prefix := a.urlPrefix
	a.mu.Unlock()

	code, handle, err := a.svc.RequestShortCode(ctx, a.clientID, a.clientSecret)
	if err != nil {
		return ShortCodeChallenge{}, mixerr.Wrap(err)
	}
	if code == "" || handle == "" {
		return ShortCodeChallenge{}, mixerr.New(mixerr.UnrecognizedDataFormat, "mixplay: short code response is incomplete")
	}
	if len(code) > maxShortCodeLen || len(handle) > maxShortCodeHandleLen {
		return ShortCodeChallenge{}, mixerr.New(mixerr.BufferTooSmall, "mixplay: short code response exceeds limits")
	}

	a.mu.Lock()
	a.handle = handle
	if a.state != AuthAuthorized {
		a.state = AuthChallengeIssued
	}
	a.mu.Unlock()

	log.Debugf("mixplay: short code issued (%s)", code)
	return ShortCodeChallenge{Code: code, VerificationURL: prefix + code}, nil
}

// AwaitCompletion blocks until the user completes the login out-of-band, ctx is done,
// or the service gives up. The short-code handle is single-use: it is cleared whatever
// the outcome.
func (a *AuthClient) AwaitCompletion(ctx context.Context) error {
	a.mu.Lock()
	handle := a.handle
	a.handle = ""
	a.mu.Unlock()

	if strings.TrimSpace(handle) == "" {
		return mixerr.New(mixerr.InvalidOperation, "mixplay: RequestShortCode must be called first")
	}

	refreshToken, err := a.svc.AwaitShortCode(ctx, a.clientID, a.clientSecret, handle)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.failLocked()
		return mixerr.Wrap(err)
	}
	if err = a.importRefreshToken(refreshToken); err != nil {
		a.failLocked()
		return err
	}
	a.state = AuthAuthorized
	log.Info("mixplay: short code authorization complete")
	return nil
}

// SetToken restores a blob previously returned by Token and refreshes it.
// The cached token is never trusted as-is. If the client was already authorized
// and the refresh fails, the previous pair is put back.
func (a *AuthClient) SetToken(ctx context.Context, blob string) error {
	pair, err := a.store.Deserialize(blob)
	if err != nil {
		return err
	}

	a.mu.Lock()
	prev, hadPrev := a.store.Current()
	wasAuthorized := hadPrev && a.state == AuthAuthorized
	a.mu.Unlock()

	if err = a.store.Replace(pair); err != nil {
		return err
	}
	if err = a.Refresh(ctx); err != nil {
		if wasAuthorized {
			if errRestore := a.store.Replace(prev); errRestore != nil {
				log.WithError(errRestore).Warn("mixplay: failed to restore previous token")
			}
		}
		return err
	}
	return nil
}

// Refresh exchanges the held refresh token for a new pair. On failure the held pair is left untouched.
func (a *AuthClient) Refresh(ctx context.Context) error {
	old, ok := a.store.Current()
	if !ok {
		return mixerr.New(mixerr.InvalidOperation, "mixplay: no previous token was found to refresh")
	}

	newRefreshToken, err := a.svc.RefreshToken(ctx, a.clientID, a.clientSecret, old.RefreshToken)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.failLocked()
		return mixerr.Wrap(err)
	}
	if err = a.importRefreshToken(newRefreshToken); err != nil {
		a.failLocked()
		return err
	}
	a.state = AuthAuthorized
	log.Debug("mixplay: token refreshed")
	return nil
}

// Reset forgets the held tokens and any outstanding short code.
func (a *AuthClient) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handle = ""
	a.state = AuthNoChallenge
	a.store.Clear()
}

// failLocked records a failed attempt without demoting an authorized client.
// Caller holds a.mu.
func (a *AuthClient) failLocked() {
	if a.state != AuthAuthorized {
		a.state = AuthFailed
	}
}

// importRefreshToken is the only path by which a refresh token becomes a TokenPair.
// Caller holds a.mu.
func (a *AuthClient) importRefreshToken(raw string) error {
	if raw == "" {
		return mixerr.New(mixerr.InvalidState, "mixplay: refresh token was empty")
	}
	accessToken, err := a.svc.ParseRefreshToken(raw)
	if err != nil {
		return mixerr.Wrap(err)
	}
	pair, err := NewTokenPair(raw, accessToken)
	if err != nil {
		return err
	}
	return a.store.Replace(pair)
}
