package util

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/router-for-me/MixPlay/internal/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// SetProxy configures the provided HTTP client with proxy settings from the configuration.
// It supports SOCKS5, HTTP, and HTTPS proxies. The function modifies the client's transport
// to route requests through the configured proxy server.
func SetProxy(cfg *config.SDKConfig, httpClient *http.Client) *http.Client {
	if cfg == nil || strings.TrimSpace(cfg.ProxyURL) == "" {
		return httpClient
	}
	proxyFunc, dialContext, ok := proxySettings(cfg.ProxyURL)
	if !ok {
		return httpClient
	}
	transport := &http.Transport{Proxy: proxyFunc, DialContext: dialContext}
	httpClient.Transport = transport
	return httpClient
}

// NewHTTPClient returns an HTTP client with the given timeout and the configured proxy.
func NewHTTPClient(cfg *config.SDKConfig, timeout time.Duration) *http.Client {
	return SetProxy(cfg, &http.Client{Timeout: timeout})
}

// NewWebsocketDialer returns a websocket dialer that honours the configured proxy.
func NewWebsocketDialer(cfg *config.SDKConfig, handshakeTimeout time.Duration) *websocket.Dialer {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	if cfg == nil || strings.TrimSpace(cfg.ProxyURL) == "" {
		return dialer
	}
	proxyFunc, dialContext, ok := proxySettings(cfg.ProxyURL)
	if !ok {
		return dialer
	}
	dialer.Proxy = proxyFunc
	dialer.NetDialContext = dialContext
	return dialer
}

// proxySettings turns a proxy URL into either an HTTP proxy function or a SOCKS5 dialer.
func proxySettings(raw string) (func(*http.Request) (*url.URL, error), func(ctx context.Context, network, addr string) (net.Conn, error), bool) {
	proxyURL, errParse := url.Parse(strings.TrimSpace(raw))
	if errParse != nil {
		log.Errorf("parse proxy url failed: %v", errParse)
		return nil, nil, false
	}
	switch proxyURL.Scheme {
	case "socks5":
		var proxyAuth *proxy.Auth
		if proxyURL.User != nil {
			username := proxyURL.User.Username()
			password, _ := proxyURL.User.Password()
			proxyAuth = &proxy.Auth{User: username, Password: password}
		}
		dialer, errSOCKS5 := proxy.SOCKS5("tcp", proxyURL.Host, proxyAuth, proxy.Direct)
		if errSOCKS5 != nil {
			log.Errorf("create SOCKS5 dialer failed: %v", errSOCKS5)
			return nil, nil, false
		}
		return nil, func(ctx context.Context, network, addr string) (net.Conn, error) {
			if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
				return contextDialer.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}, true
	case "http", "https":
		return http.ProxyURL(proxyURL), nil, true
	default:
		log.Warnf("unsupported proxy scheme %q, ignoring proxy-url", proxyURL.Scheme)
		return nil, nil, false
	}
}
