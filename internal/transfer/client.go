package transfer

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	defaultUserAgent           = "zipfetch/1.0"
	defaultMaxRedirects        = 10
	defaultDialTimeout         = 30 * time.Second
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
)

// ClientOptions configures the HTTP clients handed out by a ClientPool.
type ClientOptions struct {
	// UserAgent is sent with every request.
	UserAgent string
	// MaxRedirects caps the redirect chain followed per request.
	MaxRedirects int
	// CACertFile, if set, is a PEM bundle trusted instead of the
	// system roots.
	CACertFile string

	DialTimeout         time.Duration
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
}

func (o *ClientOptions) fillDefaults() {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = defaultMaxRedirects
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.IdleConnTimeout <= 0 {
		o.IdleConnTimeout = defaultIdleConnTimeout
	}
	if o.TLSHandshakeTimeout <= 0 {
		o.TLSHandshakeTimeout = defaultTLSHandshakeTimeout
	}
}

// ClientPool hands out configured *http.Client values and takes them
// back when a transfer finishes, so transports (and their connection
// caches) are reused across downloads.
type ClientPool struct {
	mu   sync.Mutex
	idle []*http.Client
	opts ClientOptions
}

// NewClientPool creates a pool that builds clients with the given
// options. Zero option fields fall back to defaults.
func NewClientPool(opts ClientOptions) *ClientPool {
	opts.fillDefaults()

	return &ClientPool{opts: opts}
}

// UserAgent returns the identifier sent with every request.
func (p *ClientPool) UserAgent() string {
	return p.opts.UserAgent
}

// Acquire returns an idle client or builds a new one.
func (p *ClientPool) Acquire() (*http.Client, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		client := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		return client, nil
	}
	p.mu.Unlock()

	return p.build()
}

// Release returns a client to the pool. Releasing nil is a no-op.
func (p *ClientPool) Release(client *http.Client) {
	if client == nil {
		return
	}

	p.mu.Lock()
	p.idle = append(p.idle, client)
	p.mu.Unlock()
}

// Close discards all idle clients and their cached connections.
func (p *ClientPool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, client := range idle {
		client.CloseIdleConnections()
	}
}

func (p *ClientPool) build() (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     p.opts.IdleConnTimeout,
		TLSHandshakeTimeout: p.opts.TLSHandshakeTimeout,
		DialContext: (&net.Dialer{
			Timeout:   p.opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	if p.opts.CACertFile != "" {
		pem, err := os.ReadFile(p.opts.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no usable certificates in %s", p.opts.CACertFile)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: roots}
	}

	maxRedirects := p.opts.MaxRedirects

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max: %d)", maxRedirects)
			}
			return nil
		},
	}, nil
}
