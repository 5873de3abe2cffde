package mixplay

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/router-for-me/MixPlay/sdk/mixerr"
)

// TokenPair is a refresh token together with the access token derived from it.
// Both fields are populated whenever a TokenPair is handed out by this package.
type TokenPair struct {
	// RefreshToken is the long-lived credential exchanged for new access tokens.
	RefreshToken string `json:"refresh_token"`
	// AccessToken is the authorization value presented to the protocol transport.
	AccessToken string `json:"access_token"`
}

// NewTokenPair validates and builds a TokenPair.
func NewTokenPair(refreshToken, accessToken string) (TokenPair, error) {
	pair := TokenPair{RefreshToken: refreshToken, AccessToken: accessToken}
	if err := pair.validate(); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (p TokenPair) validate() error {
	if strings.TrimSpace(p.RefreshToken) == "" {
		return mixerr.New(mixerr.InvalidState, "mixplay: refresh token is empty")
	}
	if strings.TrimSpace(p.AccessToken) == "" {
		return mixerr.New(mixerr.InvalidState, "mixplay: access token is empty")
	}
	return nil
}

// TokenStore owns the current TokenPair. Replace is an atomic swap; no history is kept.
type TokenStore struct {
	current atomic.Pointer[TokenPair]
}

// NewTokenStore returns an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Current returns the held pair, if any.
func (s *TokenStore) Current() (TokenPair, bool) {
	p := s.current.Load()
	if p == nil {
		return TokenPair{}, false
	}
	return *p, true
}

// Replace swaps in pair, discarding the previous one.
func (s *TokenStore) Replace(pair TokenPair) error {
	if err := pair.validate(); err != nil {
		return err
	}
	s.current.Store(&pair)
	return nil
}

// Clear drops the held pair.
func (s *TokenStore) Clear() {
	s.current.Store(nil)
}

// Serialize returns the opaque blob for the held pair, or "" when nothing is held.
func (s *TokenStore) Serialize() string {
	p := s.current.Load()
	if p == nil {
		return ""
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Deserialize parses a blob produced by Serialize. It does not modify the store.
func (s *TokenStore) Deserialize(blob string) (TokenPair, error) {
	trimmed := strings.TrimSpace(blob)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return TokenPair{}, mixerr.New(mixerr.InvalidState, "mixplay: invalid auth token given")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.DisallowUnknownFields()
	var pair TokenPair
	if err := dec.Decode(&pair); err != nil {
		return TokenPair{}, mixerr.WithCause(mixerr.InvalidState, "mixplay: invalid auth token given", err)
	}
	if dec.More() {
		return TokenPair{}, mixerr.New(mixerr.InvalidState, "mixplay: trailing data after auth token")
	}
	if err := pair.validate(); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}
