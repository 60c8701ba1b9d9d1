// Package proxy forwards authenticated API calls to the partner platforms
// using the stored credential.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/lifecycle"
	"github.com/poke08888/tiktok-ads-dashboard/internal/platform"
)

// DefaultUpstreamTimeout bounds a single proxied upstream call.
const DefaultUpstreamTimeout = 30 * time.Second

// Request is one proxied call: everything needed to rebuild it upstream.
type Request struct {
	Platform string
	APIPath  string
	Method   string
	Query    url.Values
	Header   http.Header
	Body     []byte
}

// Result is the upstream's 2xx answer, passed through unmodified.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
}

// Dispatcher resolves a fresh credential, authenticates the outbound
// request the platform's way, and relays the upstream answer verbatim.
type Dispatcher struct {
	adapters  platform.Registry
	lifecycle *lifecycle.Manager
	client    *http.Client
	logger    *zap.Logger
}

// NewDispatcher wires the dispatcher. A nil client gets the default
// upstream timeout.
func NewDispatcher(adapters platform.Registry, manager *lifecycle.Manager, client *http.Client, logger *zap.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultUpstreamTimeout}
	}
	return &Dispatcher{
		adapters:  adapters,
		lifecycle: manager,
		client:    client,
		logger:    logger,
	}
}

// Dispatch forwards one call. Credential errors surface as the lifecycle
// sentinels, upstream rejections as *domain.UpstreamError, and transport
// failures as *domain.NoResponseError. Success bodies are never reshaped.
func (d *Dispatcher) Dispatch(ctx context.Context, in Request) (*Result, error) {
	adapter, err := d.adapters.Get(in.Platform)
	if err != nil {
		return nil, err
	}

	cred, err := d.lifecycle.EnsureFresh(ctx, in.Platform)
	if err != nil {
		return nil, err
	}

	target, err := url.Parse(adapter.UpstreamURL(in.APIPath))
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	target.RawQuery = in.Query.Encode()

	var body io.Reader
	if len(in.Body) > 0 {
		body = bytes.NewReader(in.Body)
	}
	req, err := http.NewRequestWithContext(ctx, in.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if ct := in.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	} else if len(in.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	// Authentication is attached last so signatures cover the final
	// parameter set.
	adapter.Authenticate(req, in.APIPath, cred)

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		d.log().Warn("upstream unreachable",
			zap.String("platform", in.Platform),
			zap.String("api_path", in.APIPath),
			zap.Error(err))
		return nil, &domain.NoResponseError{Cause: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.NoResponseError{Cause: err}
	}

	d.log().Info("proxied upstream call",
		zap.String("platform", in.Platform),
		zap.String("method", in.Method),
		zap.String("api_path", in.APIPath),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{Status: resp.StatusCode, Body: payload}
	}

	return &Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}

func (d *Dispatcher) log() *zap.Logger {
	if d.logger != nil {
		return d.logger
	}
	return zap.L()
}
