// Package interactive implements the interactive 2.0 protocol client over websockets.
// A Dialer discovers hosts and creates Sessions; a Session owns one websocket, a reader
// goroutine that queues inbound packets, and a heartbeat. Queued packets are dispatched
// to Handlers only when the owner calls Pump.
package interactive

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/router-for-me/MixPlay/sdk/mixerr"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// DefaultQueueSize bounds the number of inbound packets waiting for Pump.
	DefaultQueueSize = 4096
	// ProtocolVersion is sent in the X-Protocol-Version handshake header.
	ProtocolVersion = "2.0"

	hostsPath               = "/interactive/hosts"
	defaultHandshakeTimeout = 15 * time.Second
)

// Options configures a Dialer.
type Options struct {
	// APIBaseURL is the REST root used for host discovery.
	APIBaseURL string
	// HostsURL overrides the discovery endpoint.
	HostsURL string
	// SocketAddress skips discovery and dials this URL.
	SocketAddress string
	// HTTPClient performs host discovery. Defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// WebsocketDialer performs the handshake. Defaults to a dialer with a 15s handshake timeout.
	WebsocketDialer *websocket.Dialer
	// QueueSize bounds the inbound queue. <= 0 uses DefaultQueueSize.
	QueueSize int
	// Handlers receive dispatched events.
	Handlers Handlers
}

// Dialer creates protocol sessions.
type Dialer struct {
	opts Options
}

// NewDialer builds a Dialer, filling unset options with defaults.
func NewDialer(opts Options) *Dialer {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.WebsocketDialer == nil {
		opts.WebsocketDialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	opts.APIBaseURL = strings.TrimRight(strings.TrimSpace(opts.APIBaseURL), "/")
	return &Dialer{opts: opts}
}

// Open creates an unconnected session. Nothing touches the network until Connect.
func (d *Dialer) Open(_ context.Context) (*Session, error) {
	s := &Session{
		dialer:   d,
		id:       uuid.NewString()[:8],
		handlers: d.opts.Handlers,
		queue:    make(chan inbound, d.opts.QueueSize),
		closed:   make(chan struct{}),
	}
	return s, nil
}

// DiscoverHosts returns the websocket addresses advertised by the service, in preference order.
func (d *Dialer) DiscoverHosts(ctx context.Context) ([]string, error) {
	endpoint := strings.TrimSpace(d.opts.HostsURL)
	if endpoint == "" {
		if d.opts.APIBaseURL == "" {
			return nil, mixerr.New(mixerr.NoHost, "interactive: no api base url configured for host discovery")
		}
		endpoint = d.opts.APIBaseURL + hostsPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, mixerr.WithCause(mixerr.NoHost, "interactive: failed to create hosts request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, mixerr.Wrap(ctx.Err())
		}
		return nil, mixerr.WithCause(mixerr.NoHost, "interactive: hosts request failed", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("interactive hosts: close body error: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mixerr.WithCause(mixerr.NoHost, "interactive: failed to read hosts response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mixerr.HTTP(resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, mixerr.New(mixerr.JsonParseError, "interactive: hosts response is not valid JSON")
	}

	var hosts []string
	for _, addr := range gjson.GetBytes(body, "#.address").Array() {
		if a := strings.TrimSpace(addr.String()); a != "" {
			hosts = append(hosts, a)
		}
	}
	if len(hosts) == 0 {
		return nil, mixerr.New(mixerr.NoHost, "interactive: no hosts advertised")
	}
	return hosts, nil
}

func (d *Dialer) resolveAddress(ctx context.Context) (string, error) {
	if addr := strings.TrimSpace(d.opts.SocketAddress); addr != "" {
		return addr, nil
	}
	hosts, err := d.DiscoverHosts(ctx)
	if err != nil {
		return "", err
	}
	return hosts[0], nil
}

func handshakeHeaders(authorization, experienceID, shareCode string) http.Header {
	header := http.Header{}
	header.Set("Authorization", authorization)
	header.Set("X-Protocol-Version", ProtocolVersion)
	header.Set("X-Interactive-Version", experienceID)
	if shareCode != "" {
		header.Set("X-Interactive-Sharecode", shareCode)
	}
	return header
}

func classifyDialError(ctx context.Context, resp *http.Response, err error) error {
	if resp != nil {
		if resp.Body != nil {
			if errClose := resp.Body.Close(); errClose != nil {
				log.Errorf("interactive handshake: close body error: %v", errClose)
			}
		}
		if resp.StatusCode >= 300 {
			return mixerr.HTTP(resp.StatusCode)
		}
	}
	if ctx.Err() != nil {
		return mixerr.Wrap(ctx.Err())
	}
	return mixerr.WithCause(mixerr.ConnectFailed, "interactive: dial failed", err)
}
