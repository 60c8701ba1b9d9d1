package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/config"
	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/signing"
)

// Shopee API v2 paths. The authorization redirect is signed unscoped; token
// exchange, refresh, and shop API calls are signed shop-scoped.
const (
	shopeeAuthPartnerPath = "/api/v2/shop/auth_partner"
	shopeeTokenGetPath    = "/api/v2/auth/token/get"
	shopeeAccessTokenPath = "/api/v2/auth/access_token/get"
)

// Shopee adapts the signed-parameter Shopee partner API.
type Shopee struct {
	cfg    config.ShopeeConfig
	signer *signing.Signer
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

var _ Adapter = (*Shopee)(nil)

// NewShopee wires the Shopee adapter.
func NewShopee(cfg config.ShopeeConfig, client *http.Client, logger *zap.Logger) *Shopee {
	return &Shopee{
		cfg:    cfg,
		signer: signing.New(cfg.PartnerID, cfg.PartnerKey),
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Shopee) Name() string { return "shopee" }

func (s *Shopee) RequiresAttempt() bool { return false }

// Begin builds the signed partner authorization URL.
func (s *Shopee) Begin(ctx context.Context, p BeginParams) (*Authorization, error) {
	redirect := p.RedirectURI
	if redirect == "" {
		redirect = s.cfg.RedirectURL
	}
	if redirect == "" {
		return nil, fmt.Errorf("shopee redirect url not configured")
	}

	ts := s.now().Unix()
	sign := s.signer.Sign(shopeeAuthPartnerPath, ts)

	authURL, err := url.Parse(s.cfg.BaseURL + shopeeAuthPartnerPath)
	if err != nil {
		return nil, fmt.Errorf("parse auth url: %w", err)
	}
	q := authURL.Query()
	q.Set("partner_id", s.signer.PartnerID())
	q.Set("redirect", redirect)
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", sign)
	authURL.RawQuery = q.Encode()

	return &Authorization{URL: authURL.String()}, nil
}

type shopeeTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireIn     int64  `json:"expire_in"`
	RequestID    string `json:"request_id"`
	Error        string `json:"error"`
	Message      string `json:"message"`
}

// Exchange trades the callback code for a token set. The shop_id arrives as
// a callback parameter unless pinned in configuration.
func (s *Shopee) Exchange(ctx context.Context, cb CallbackParams, _ *domain.AuthorizationAttempt) (domain.Credential, error) {
	shopID := s.cfg.ShopID
	if shopID == "" {
		shopID = cb.ShopID
	}
	if shopID == "" {
		return domain.Credential{}, fmt.Errorf("shopee callback missing shop_id")
	}

	ts := s.now().Unix()
	resp, err := s.postSigned(ctx, shopeeTokenGetPath, ts, shopID, map[string]any{
		"code":       cb.Code,
		"shop_id":    mustInt(shopID),
		"partner_id": mustInt(s.signer.PartnerID()),
	})
	if err != nil {
		return domain.Credential{}, err
	}

	return s.credentialFrom(resp, ts, shopID)
}

// Refresh trades the stored refresh token for a new token set.
func (s *Shopee) Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	shopID := cred.ShopID
	if shopID == "" {
		shopID = s.cfg.ShopID
	}

	ts := s.now().Unix()
	resp, err := s.postSigned(ctx, shopeeAccessTokenPath, ts, shopID, map[string]any{
		"refresh_token": cred.RefreshToken,
		"shop_id":       mustInt(shopID),
		"partner_id":    mustInt(s.signer.PartnerID()),
	})
	if err != nil {
		return domain.Credential{}, err
	}

	return s.credentialFrom(resp, ts, shopID)
}

func (s *Shopee) UpstreamURL(apiPath string) string {
	return s.cfg.BaseURL + apiPath
}

// Authenticate attaches the signed parameter set: partner_id, timestamp,
// sign, shop_id, access_token. The timestamp in the query is the one signed.
func (s *Shopee) Authenticate(req *http.Request, apiPath string, cred domain.Credential) {
	ts := s.now().Unix()
	shopID := cred.ShopID
	if shopID == "" {
		shopID = s.cfg.ShopID
	}

	q := req.URL.Query()
	q.Set("partner_id", s.signer.PartnerID())
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", s.signer.SignShop(apiPath, ts, shopID))
	q.Set("shop_id", shopID)
	q.Set("access_token", cred.AccessToken)
	req.URL.RawQuery = q.Encode()
}

func (s *Shopee) postSigned(ctx context.Context, apiPath string, ts int64, shopID string, body map[string]any) (*shopeeTokenResponse, error) {
	endpoint, err := url.Parse(s.cfg.BaseURL + apiPath)
	if err != nil {
		return nil, fmt.Errorf("parse token url: %w", err)
	}
	q := endpoint.Query()
	q.Set("partner_id", s.signer.PartnerID())
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", s.signer.SignShop(apiPath, ts, shopID))
	endpoint.RawQuery = q.Encode()

	var resp shopeeTokenResponse
	if err := postJSON(ctx, s.client, endpoint.String(), body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("shopee rejected request: %s: %s", resp.Error, resp.Message)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("shopee response missing access_token")
	}
	return &resp, nil
}

func (s *Shopee) credentialFrom(resp *shopeeTokenResponse, ts int64, shopID string) (domain.Credential, error) {
	cred := domain.Credential{
		Platform:     s.Name(),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		CreatedAt:    ts,
		ExpireIn:     resp.ExpireIn,
		ShopID:       shopID,
	}
	if resp.RequestID != "" {
		cred.AdditionalData = map[string]any{"request_id": resp.RequestID}
	}
	return cred, nil
}

func mustInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
