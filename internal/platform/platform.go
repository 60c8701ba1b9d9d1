// Package platform contains one adapter per partner API. Adapters own the
// wire formats of the authorization handshake, token refresh, and request
// authentication; they never touch the credential store.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
)

// BeginParams carries caller overrides for an authorization start.
type BeginParams struct {
	RedirectURI string
	Scopes      []string
}

// Authorization is the outcome of an authorization start: the upstream URL
// to redirect the user to, plus the attempt to persist for PKCE platforms.
type Authorization struct {
	URL     string
	Attempt *domain.AuthorizationAttempt
}

// CallbackParams captures the query parameters of an authorization callback.
type CallbackParams struct {
	Code        string
	State       string
	ShopID      string
	RedirectURI string
}

// Adapter is the per-platform integration contract.
type Adapter interface {
	Name() string

	// RequiresAttempt reports whether Begin persists an authorization
	// attempt that Exchange must consume (PKCE platforms).
	RequiresAttempt() bool

	Begin(ctx context.Context, p BeginParams) (*Authorization, error)
	Exchange(ctx context.Context, cb CallbackParams, attempt *domain.AuthorizationAttempt) (domain.Credential, error)
	Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error)

	// UpstreamURL maps a proxied api path to the full upstream URL.
	UpstreamURL(apiPath string) string

	// Authenticate attaches the platform's authentication to an outbound
	// request: signed query parameters or a bearer header plus subject id.
	Authenticate(req *http.Request, apiPath string, cred domain.Credential)
}

// Registry maps platform keys to adapters.
type Registry map[string]Adapter

// Get returns the adapter for a platform key.
func (r Registry) Get(name string) (Adapter, error) {
	adapter, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlatformUnknown, name)
	}
	return adapter, nil
}

// Names lists the registered platform keys.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	return names
}

// postJSON posts a JSON body and decodes a 2xx JSON response into out.
// Numbers are decoded as json.Number: partner subject ids exceed float64
// precision.
func postJSON(ctx context.Context, client *http.Client, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &domain.NoResponseError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.NoResponseError{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.UpstreamError{Status: resp.StatusCode, Body: data}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
