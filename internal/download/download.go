// Package download fetches repository content over HTTP through the
// currently configured proxy.
package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/blackwell-systems/reposync/internal/proxy"
)

const (
	defaultUserAgent = "reposync"
	dialTimeout      = 30 * time.Second
)

// Downloader owns the single proxy slot and the HTTP client built from it.
// The client is rebuilt on first use after the proxy changes.
type Downloader struct {
	mu        sync.Mutex
	cfg       proxy.Config
	client    *http.Client
	userAgent string
}

// New creates a Downloader with no proxy.
func New() *Downloader {
	return &Downloader{userAgent: defaultUserAgent}
}

// SetProxy replaces the proxy. It performs no network I/O.
func (d *Downloader) SetProxy(cfg proxy.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.client = nil
}

// Proxy returns the current proxy.
func (d *Downloader) Proxy() proxy.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Client returns an HTTP client routed through the current proxy.
func (d *Downloader) Client() (*http.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}
	transport, err := newTransport(d.cfg)
	if err != nil {
		return nil, err
	}
	d.client = &http.Client{Transport: transport}
	return d.client, nil
}

func newTransport(cfg proxy.Config) (*http.Transport, error) {
	base := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           base.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
	}

	switch cfg.Kind {
	case proxy.KindNone:
	case proxy.KindHTTP:
		transport.Proxy = http.ProxyURL(&url.URL{Scheme: "http", Host: cfg.Address()})
	case proxy.KindSOCKS:
		// The proxy host is resolved by the dialer on each connection.
		dialer, err := xproxy.SOCKS5("tcp", cfg.Address(), nil, base)
		if err != nil {
			return nil, fmt.Errorf("failed to create socks dialer: %w", err)
		}
		contextDialer, ok := dialer.(xproxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer does not support contexts")
		}
		transport.DialContext = contextDialer.DialContext
	default:
		return nil, fmt.Errorf("unsupported proxy kind %d", int(cfg.Kind))
	}
	return transport, nil
}

// Validators are the cache validators sent with a conditional request.
type Validators struct {
	LastModified string
	EntityTag    string
}

// Result describes a completed fetch.
type Result struct {
	NotModified  bool
	LastModified string
	EntityTag    string
	Size         int64
}

// Fetch performs a conditional GET of rawURL and copies a 200 body into w.
// A 304 response yields Result.NotModified and writes nothing.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, v Validators, w io.Writer) (Result, error) {
	client, err := d.Client()
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}
	if v.EntityTag != "" {
		req.Header.Set("If-None-Match", v.EntityTag)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return Result{NotModified: true, LastModified: v.LastModified, EntityTag: v.EntityTag}, nil
	case http.StatusOK:
	default:
		return Result{}, fmt.Errorf("failed to fetch %s: unexpected status %s", rawURL, resp.Status)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	return Result{
		LastModified: resp.Header.Get("Last-Modified"),
		EntityTag:    resp.Header.Get("ETag"),
		Size:         n,
	}, nil
}
