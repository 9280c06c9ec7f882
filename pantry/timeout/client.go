// pantry/timeout/client.go
package timeout

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig bounds each phase of an outbound request. Zero fields take
// the defaults shown.
type ClientConfig struct {
	// Timeout covers the whole request including redirects. Default: 10s.
	Timeout time.Duration

	// DialTimeout bounds connection setup. Default: 5s.
	DialTimeout time.Duration

	// TLSHandshakeTimeout default: 5s.
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers. Default: 10s.
	ResponseHeaderTimeout time.Duration

	// MaxIdleConnsPerHost default: 10.
	MaxIdleConnsPerHost int
}

func (c *ClientConfig) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = 5 * time.Second
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = 10 * time.Second
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 10
	}
}

// NewClient returns an HTTP client for calls to upstream services such as
// the hosted auth API. It never waits on a peer without a deadline.
func NewClient(cfg ClientConfig) *http.Client {
	cfg.setDefaults()
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: cfg.Timeout}
}
