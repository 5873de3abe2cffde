// Package mixer implements the short-code OAuth flow and token refresh against the
// service's REST API. The refresh token it hands out is an opaque JSON blob carrying
// the access token, refresh token, token type and expiry.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/router-for-me/MixPlay/internal/config"
	"github.com/router-for-me/MixPlay/internal/util"
	"github.com/router-for-me/MixPlay/sdk/mixerr"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"
)

const (
	// DefaultPollInterval is how often the short-code check endpoint is polled.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultScope is requested when no scope is configured.
	DefaultScope = "interactive:robot:self"

	shortCodePath      = "/oauth/shortcode"
	shortCodeCheckPath = "/oauth/shortcode/check/"
	tokenPath          = "/oauth/token"
)

// Service talks to the OAuth endpoints.
type Service struct {
	httpClient   *http.Client
	apiBaseURL   string
	scope        string
	pollInterval time.Duration
	now          func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithHTTPClient replaces the proxy-aware default client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithPollInterval changes how often the short-code check endpoint is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// WithScope overrides DefaultScope.
func WithScope(scope string) Option {
	return func(s *Service) {
		if strings.TrimSpace(scope) != "" {
			s.scope = strings.TrimSpace(scope)
		}
	}
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service for the API configured in cfg.
func NewService(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		apiBaseURL:   config.DefaultAPIBaseURL,
		scope:        DefaultScope,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	if cfg != nil {
		s.httpClient = util.SetProxy(&cfg.SDKConfig, s.httpClient)
		if base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"); base != "" {
			s.apiBaseURL = base
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestShortCode asks for a new short code and its polling handle.
func (s *Service) RequestShortCode(ctx context.Context, clientID, clientSecret string) (string, string, error) {
	payload, err := sjson.Set(`{}`, "client_id", clientID)
	if err == nil {
		payload, err = sjson.Set(payload, "scope", s.scope)
	}
	if err == nil && clientSecret != "" {
		payload, err = sjson.Set(payload, "client_secret", clientSecret)
	}
	if err != nil {
		return "", "", mixerr.WithCause(mixerr.SdkInternalError, "mixer: failed to build short code request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+shortCodePath, strings.NewReader(payload))
	if err != nil {
		return "", "", mixerr.WithCause(mixerr.SdkInternalError, "mixer: failed to create short code request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := s.do(ctx, req, "short code")
	if err != nil {
		return "", "", err
	}
	if status != http.StatusOK {
		log.Debugf("mixer: short code request failed with status %d: %s", status, string(body))
		return "", "", mixerr.HTTP(status)
	}
	if !gjson.ValidBytes(body) {
		return "", "", mixerr.New(mixerr.JsonParseError, "mixer: short code response is not valid JSON")
	}

	code := gjson.GetBytes(body, "code").String()
	handle := gjson.GetBytes(body, "handle").String()
	if code == "" || handle == "" {
		return "", "", mixerr.New(mixerr.UnrecognizedDataFormat, "mixer: short code response is missing code or handle")
	}
	return code, handle, nil
}

// AwaitShortCode polls until the user approves or denies the short code, then exchanges
// the resulting authorization code for tokens.
func (s *Service) AwaitShortCode(ctx context.Context, clientID, clientSecret, handle string) (string, error) {
	if strings.TrimSpace(handle) == "" {
		return "", mixerr.New(mixerr.InvalidOperation, "mixer: short code handle is empty")
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", mixerr.Wrap(ctx.Err())
		case <-ticker.C:
			code, done, err := s.checkShortCode(ctx, handle)
			if err != nil {
				return "", err
			}
			if !done {
				continue
			}
			return s.exchangeCode(ctx, clientID, clientSecret, code)
		}
	}
}

// checkShortCode returns (code, true, nil) once the user approved.
func (s *Service) checkShortCode(ctx context.Context, handle string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBaseURL+shortCodeCheckPath+url.PathEscape(handle), nil)
	if err != nil {
		return "", false, mixerr.WithCause(mixerr.SdkInternalError, "mixer: failed to create short code check request", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := s.do(ctx, req, "short code check")
	if err != nil {
		return "", false, err
	}

	switch status {
	case http.StatusOK:
		code := gjson.GetBytes(body, "code").String()
		if code == "" {
			return "", false, mixerr.New(mixerr.UnrecognizedDataFormat, "mixer: short code check returned no code")
		}
		return code, true, nil
	case http.StatusNoContent:
		return "", false, nil
	case http.StatusForbidden:
		return "", false, mixerr.New(mixerr.AuthDenied, "mixer: the user denied access")
	case http.StatusNotFound:
		return "", false, mixerr.New(mixerr.TimedOut, "mixer: the short code expired")
	default:
		return "", false, mixerr.HTTP(status)
	}
}

func (s *Service) oauthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.apiBaseURL + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{s.scope},
	}
}

func (s *Service) exchangeCode(ctx context.Context, clientID, clientSecret, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.oauthConfig(clientID, clientSecret).Exchange(ctx, code)
	if err != nil {
		return "", classifyOAuthError(ctx, "exchange short code", err)
	}
	return encodeToken(token)
}

// RefreshToken exchanges the refresh token inside staleToken for a new blob.
func (s *Service) RefreshToken(ctx context.Context, clientID, clientSecret, staleToken string) (string, error) {
	refreshToken := gjson.Get(staleToken, "refresh_token").String()
	if refreshToken == "" {
		return "", mixerr.New(mixerr.InvalidToken, "mixer: token has no refresh_token")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	source := s.oauthConfig(clientID, clientSecret).TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return "", classifyOAuthError(ctx, "refresh token", err)
	}
	return encodeToken(token)
}

// ParseRefreshToken returns the Authorization header value carried by the blob.
func (s *Service) ParseRefreshToken(token string) (string, error) {
	if !gjson.Valid(token) {
		return "", mixerr.New(mixerr.JsonParseError, "mixer: token is not valid JSON")
	}
	accessToken := gjson.Get(token, "access_token").String()
	if accessToken == "" {
		return "", mixerr.New(mixerr.JsonParseError, "mixer: token has no access_token")
	}
	return "Bearer " + accessToken, nil
}

// IsTokenStale reports whether the access token in the blob has expired.
func (s *Service) IsTokenStale(token string) (bool, error) {
	if !gjson.Valid(token) {
		return false, mixerr.New(mixerr.JsonParseError, "mixer: token is not valid JSON")
	}
	expires := gjson.Get(token, "expires")
	if !expires.Exists() {
		return false, mixerr.New(mixerr.JsonParseError, "mixer: token has no expires field")
	}
	return expires.Int() <= s.now().Unix(), nil
}

func (s *Service) do(ctx context.Context, req *http.Request, what string) (int, []byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, mixerr.Wrap(ctx.Err())
		}
		return 0, nil, mixerr.WithCause(mixerr.HttpError, fmt.Sprintf("mixer: %s request failed", what), err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("mixer %s: close body error: %v", what, errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, mixerr.WithCause(mixerr.ReadFailed, fmt.Sprintf("mixer: failed to read %s response", what), err)
	}
	return resp.StatusCode, body, nil
}

func encodeToken(token *oauth2.Token) (string, error) {
	if token == nil || token.AccessToken == "" {
		return "", mixerr.New(mixerr.InvalidToken, "mixer: token response has no access token")
	}
	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	var expires int64
	if !token.Expiry.IsZero() {
		expires = token.Expiry.Unix()
	}

	blob, err := sjson.Set(`{}`, "access_token", token.AccessToken)
	if err == nil {
		blob, err = sjson.Set(blob, "refresh_token", token.RefreshToken)
	}
	if err == nil {
		blob, err = sjson.Set(blob, "token_type", tokenType)
	}
	if err == nil {
		blob, err = sjson.Set(blob, "expires", expires)
	}
	if err != nil {
		return "", mixerr.WithCause(mixerr.SdkInternalError, "mixer: failed to encode token", err)
	}
	return blob, nil
}

func classifyOAuthError(ctx context.Context, action string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		log.Debugf("mixer: %s failed with status %d: %s", action, retrieveErr.Response.StatusCode, string(retrieveErr.Body))
		return mixerr.HTTP(retrieveErr.Response.StatusCode)
	}
	if ctx.Err() != nil {
		return mixerr.Wrap(ctx.Err())
	}
	return mixerr.WithCause(mixerr.AuthError, fmt.Sprintf("mixer: %s", action), err)
}
