package mixplay

import (
	"context"
	"time"

	"github.com/router-for-me/MixPlay/internal/config"
	"github.com/router-for-me/MixPlay/internal/interactive"
	"github.com/router-for-me/MixPlay/internal/mixer"
	"github.com/router-for-me/MixPlay/internal/util"
	"github.com/router-for-me/MixPlay/sdk/mixerr"
)

const (
	defaultHTTPTimeout      = 30 * time.Second
	defaultHandshakeTimeout = 15 * time.Second
)

// Protocol types re-exported for embedders of the default websocket transport.
type (
	Handlers          = interactive.Handlers
	Input             = interactive.Input
	Participant       = interactive.Participant
	ParticipantAction = interactive.ParticipantAction
	ProtocolState     = interactive.State
	ProtocolSession   = interactive.Session
)

const (
	ParticipantJoin   = interactive.ParticipantJoin
	ParticipantLeave  = interactive.ParticipantLeave
	ParticipantUpdate = interactive.ParticipantUpdate
)

type websocketTransport struct {
	dialer *interactive.Dialer
}

func (t websocketTransport) Open(ctx context.Context) (Conn, error) {
	s, err := t.dialer.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RunLoopPolicyFromConfig converts the millisecond settings of the config file.
func RunLoopPolicyFromConfig(rc config.RunLoopConfig) RunLoopPolicy {
	return RunLoopPolicy{
		BatchSize:              rc.BatchSize,
		Interval:               time.Duration(rc.IntervalMS) * time.Millisecond,
		MaxConsecutiveFailures: rc.MaxConsecutiveFailures,
		BackoffMax:             time.Duration(rc.BackoffMaxMS) * time.Millisecond,
	}.normalized()
}

// NewFromConfig builds a Client that talks to the REST API and the websocket service
// configured in cfg. handlers receive protocol events from the run-loop. opts are
// applied after the defaults, so they can replace any of them.
func NewFromConfig(cfg *config.Config, handlers Handlers, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, mixerr.SDK("a config is required")
	}
	httpClient := util.NewHTTPClient(&cfg.SDKConfig, defaultHTTPTimeout)
	svc := mixer.NewService(cfg, mixer.WithHTTPClient(httpClient))
	dialer := interactive.NewDialer(interactive.Options{
		APIBaseURL:      cfg.APIBaseURL,
		HostsURL:        cfg.HostsURL,
		SocketAddress:   cfg.SocketAddress,
		HTTPClient:      httpClient,
		WebsocketDialer: util.NewWebsocketDialer(&cfg.SDKConfig, defaultHandshakeTimeout),
		Handlers:        handlers,
	})

	all := []Option{
		WithAuthService(svc),
		WithTransport(websocketTransport{dialer: dialer}),
		WithRunLoopPolicy(RunLoopPolicyFromConfig(cfg.RunLoop)),
	}
	return New(cfg.ClientID, cfg.ClientSecret, append(all, opts...)...)
}

// Protocol returns the websocket session behind the open session, or nil when no session
// is open or a custom transport is in use. Its SetReady, Capture and GetTime methods must
// not be called from inside a handler.
func (c *Client) Protocol() *ProtocolSession {
	s, _ := c.sessions.Conn().(*interactive.Session)
	return s
}
