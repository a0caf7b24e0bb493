package factory

import (
	"net"
	"net/http"
	"time"

	"askrelay/internal/config"
	"askrelay/internal/provider"
	openrouterProvider "askrelay/internal/provider/openrouter"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewGateway constructs the configured upstream gateway.
func NewGateway(cfg config.UpstreamConfig) (provider.Gateway, error) {
	client := newHTTPClient(cfg.Timeout)
	return openrouterProvider.New("openrouter", openrouterProvider.Config{
		BaseURL: cfg.BaseURL,
		SiteURL: cfg.SiteURL,
		Title:   cfg.Title,
		Headers: cfg.Headers,
	}, client)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
