package platform

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/config"
	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/pkce"
)

// TikTok adapts the bearer-token TikTok business API. Authorization uses the
// code flow with PKCE, so Begin persists an attempt holding the verifier.
type TikTok struct {
	cfg    config.TikTokConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

var _ Adapter = (*TikTok)(nil)

// NewTikTok wires the TikTok adapter.
func NewTikTok(cfg config.TikTokConfig, client *http.Client, logger *zap.Logger) *TikTok {
	return &TikTok{cfg: cfg, client: client, logger: logger, now: time.Now}
}

func (t *TikTok) Name() string { return "tiktok" }

func (t *TikTok) RequiresAttempt() bool { return true }

// Begin builds the authorization URL with PKCE challenge and CSRF state.
func (t *TikTok) Begin(ctx context.Context, p BeginParams) (*Authorization, error) {
	redirect := p.RedirectURI
	if redirect == "" {
		redirect = t.cfg.RedirectURL
	}
	if redirect == "" {
		return nil, fmt.Errorf("tiktok redirect url not configured")
	}

	verifier, err := pkce.GenerateVerifier(pkce.DefaultVerifierLength)
	if err != nil {
		return nil, fmt.Errorf("generate verifier: %w", err)
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)

	scopes := p.Scopes
	if len(scopes) == 0 {
		scopes = t.cfg.Scopes
	}

	authURL, err := url.Parse(t.cfg.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth url: %w", err)
	}
	q := authURL.Query()
	q.Set("app_id", t.cfg.AppID)
	q.Set("redirect_uri", redirect)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("scope", strings.Join(scopes, ","))
	q.Set("code_challenge", pkce.Challenge(verifier))
	q.Set("code_challenge_method", pkce.Method)
	authURL.RawQuery = q.Encode()

	return &Authorization{
		URL: authURL.String(),
		Attempt: &domain.AuthorizationAttempt{
			Platform:     t.Name(),
			CodeVerifier: verifier,
			State:        state,
			RedirectURI:  redirect,
			CreatedAt:    t.now().Unix(),
		},
	}, nil
}

type tiktokEnvelope struct {
	Code    json.Number     `json:"code"`
	Message string          `json:"message"`
	Data    tiktokTokenData `json:"data"`
}

type tiktokTokenData struct {
	AccessToken   string      `json:"access_token"`
	RefreshToken  string      `json:"refresh_token"`
	ExpiresIn     int64       `json:"expires_in"`
	AdvertiserID  json.Number `json:"advertiser_id"`
	AdvertiserIDs []any       `json:"advertiser_ids"`
	Scope         any         `json:"scope"`
}

// Exchange trades the callback code plus the stored verifier for a token
// set. A missing verifier is a hard failure, never a silent fallback.
func (t *TikTok) Exchange(ctx context.Context, cb CallbackParams, attempt *domain.AuthorizationAttempt) (domain.Credential, error) {
	if attempt == nil || attempt.CodeVerifier == "" {
		return domain.Credential{}, domain.ErrAttemptNotFound
	}

	redirect := cb.RedirectURI
	if redirect == "" {
		redirect = attempt.RedirectURI
	}

	data, err := t.postToken(ctx, "/oauth2/access_token/", map[string]any{
		"app_id":        t.cfg.AppID,
		"app_secret":    t.cfg.AppSecret,
		"auth_code":     cb.Code,
		"code_verifier": attempt.CodeVerifier,
		"redirect_uri":  redirect,
	})
	if err != nil {
		return domain.Credential{}, err
	}

	return t.credentialFrom(data, domain.Credential{}), nil
}

// Refresh trades the stored refresh token for a new token set.
func (t *TikTok) Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	data, err := t.postToken(ctx, "/oauth2/refresh_token/", map[string]any{
		"app_id":        t.cfg.AppID,
		"app_secret":    t.cfg.AppSecret,
		"refresh_token": cred.RefreshToken,
	})
	if err != nil {
		return domain.Credential{}, err
	}

	return t.credentialFrom(data, cred), nil
}

func (t *TikTok) UpstreamURL(apiPath string) string {
	return t.cfg.BaseURL + "/open_api/" + t.cfg.APIVersion + apiPath
}

// Authenticate attaches the bearer token header and the advertiser subject.
func (t *TikTok) Authenticate(req *http.Request, _ string, cred domain.Credential) {
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if cred.AdvertiserID != "" {
		q := req.URL.Query()
		q.Set("advertiser_id", cred.AdvertiserID)
		req.URL.RawQuery = q.Encode()
	}
}

func (t *TikTok) postToken(ctx context.Context, path string, body map[string]any) (*tiktokTokenData, error) {
	var envelope tiktokEnvelope
	if err := postJSON(ctx, t.client, t.UpstreamURL(path), body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Code.String() != "0" {
		return nil, fmt.Errorf("tiktok rejected request: code %s: %s", envelope.Code, envelope.Message)
	}
	if envelope.Data.AccessToken == "" {
		return nil, fmt.Errorf("tiktok response missing access_token")
	}
	return &envelope.Data, nil
}

func (t *TikTok) credentialFrom(data *tiktokTokenData, previous domain.Credential) domain.Credential {
	cred := domain.Credential{
		Platform:     t.Name(),
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		CreatedAt:    t.now().Unix(),
		ExpireIn:     data.ExpiresIn,
		AdvertiserID: data.AdvertiserID.String(),
		Scope:        scopeList(data.Scope),
	}

	if cred.AdvertiserID == "" && len(data.AdvertiserIDs) > 0 {
		cred.AdvertiserID = stringify(data.AdvertiserIDs[0])
	}
	if cred.AdvertiserID == "" {
		cred.AdvertiserID = previous.AdvertiserID
	}
	if len(cred.Scope) == 0 {
		cred.Scope = previous.Scope
	}
	if len(data.AdvertiserIDs) > 1 {
		ids := make([]string, 0, len(data.AdvertiserIDs))
		for _, id := range data.AdvertiserIDs {
			ids = append(ids, stringify(id))
		}
		cred.AdditionalData = map[string]any{"advertiser_ids": ids}
	}
	return cred
}

// scopeList normalizes the scope field, which arrives as a comma-separated
// string or as an array of strings or numbers depending on the endpoint.
func scopeList(v any) []string {
	switch scope := v.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, part := range strings.FieldsFunc(scope, func(r rune) bool { return r == ',' || r == ' ' }) {
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(scope))
		for _, item := range scope {
			out = append(out, stringify(item))
		}
		return out
	default:
		return []string{stringify(v)}
	}
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case json.Number:
		return value.String()
	default:
		return fmt.Sprint(v)
	}
}
