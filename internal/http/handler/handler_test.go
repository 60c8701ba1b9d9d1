package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/http/handler"
	"github.com/poke08888/tiktok-ads-dashboard/internal/lifecycle"
	"github.com/poke08888/tiktok-ads-dashboard/internal/platform"
	"github.com/poke08888/tiktok-ads-dashboard/internal/proxy"
	"github.com/poke08888/tiktok-ads-dashboard/internal/repository"
	"github.com/poke08888/tiktok-ads-dashboard/internal/service"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// stubAdapter is a scriptable platform.Adapter for handler tests.
type stubAdapter struct {
	name            string
	requiresAttempt bool
	authorization   *platform.Authorization
	exchanged       domain.Credential
	exchangeErr     error
	upstreamBase    string
}

func (a *stubAdapter) Name() string          { return a.name }
func (a *stubAdapter) RequiresAttempt() bool { return a.requiresAttempt }

func (a *stubAdapter) Begin(ctx context.Context, p platform.BeginParams) (*platform.Authorization, error) {
	return a.authorization, nil
}

func (a *stubAdapter) Exchange(ctx context.Context, cb platform.CallbackParams, attempt *domain.AuthorizationAttempt) (domain.Credential, error) {
	return a.exchanged, a.exchangeErr
}

func (a *stubAdapter) Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	return domain.Credential{}, nil
}

func (a *stubAdapter) UpstreamURL(apiPath string) string { return a.upstreamBase + apiPath }

func (a *stubAdapter) Authenticate(req *http.Request, _ string, cred domain.Credential) {
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
}

type fixture struct {
	router *gin.Engine
	creds  *repository.MemoryCredentialStore
}

func newFixture(t *testing.T, adapter *stubAdapter) *fixture {
	t.Helper()
	creds := repository.NewMemoryCredentialStore()
	attempts := repository.NewMemoryAttemptStore(5 * time.Minute)
	registry := platform.Registry{adapter.name: adapter}
	manager := lifecycle.NewManager(creds, nil, 30*time.Minute, zap.NewNop())
	flow := service.NewFlowService(registry, creds, attempts, manager, zap.NewNop())
	dispatcher := proxy.NewDispatcher(registry, manager, nil, zap.NewNop())

	authHandler := handler.NewAuthHandler(flow, "http://localhost:3000")
	proxyHandler := handler.NewProxyHandler(dispatcher)

	r := gin.New()
	r.GET("/auth/:platform", authHandler.Begin)
	r.GET("/auth/:platform/callback", authHandler.Callback)
	r.GET("/auth/:platform/status", authHandler.Status)
	r.POST("/auth/:platform/refresh", authHandler.Refresh)
	r.POST("/auth/:platform/logout", authHandler.Logout)
	r.Any("/proxy/:platform/*path", proxyHandler.Dispatch)

	return &fixture{router: r, creds: creds}
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func TestBeginRedirectsToAuthorizationURL(t *testing.T) {
	f := newFixture(t, &stubAdapter{
		name:          "shopee",
		authorization: &platform.Authorization{URL: "https://partner.test/api/v2/shop/auth_partner?sign=s"},
	})

	w := f.do(http.MethodGet, "/auth/shopee")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://partner.test/api/v2/shop/auth_partner?sign=s", w.Header().Get("Location"))
}

func TestBeginUnknownPlatform(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "shopee"})

	w := f.do(http.MethodGet, "/auth/lazada")
	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "unknown_platform", body["error"])
	require.NotEmpty(t, body["timestamp"])
}

func TestCallbackRedirectsWithSuccess(t *testing.T) {
	f := newFixture(t, &stubAdapter{
		name: "shopee",
		exchanged: domain.Credential{
			Platform:    "shopee",
			AccessToken: "tok-A",
			CreatedAt:   time.Now().Unix(),
			ExpireIn:    14400,
		},
	})

	w := f.do(http.MethodGet, "/auth/shopee/callback?code=abc&shop_id=226289")
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "localhost:3000", loc.Host)
	require.Equal(t, "success", loc.Query().Get("shopee_auth"))

	stored, err := f.creds.Get(context.Background(), "shopee")
	require.NoError(t, err)
	require.Equal(t, "tok-A", stored.AccessToken)
}

func TestCallbackRedirectsWithError(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "shopee"})

	// Missing code never reaches the adapter.
	w := f.do(http.MethodGet, "/auth/shopee/callback")
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "error", loc.Query().Get("shopee_auth"))
	require.NotEmpty(t, loc.Query().Get("message"))
}

func TestStatusUnauthenticated(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tiktok"})

	w := f.do(http.MethodGet, "/auth/tiktok/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, false, body["authenticated"])
	require.Equal(t, true, body["expired"])
}

func TestStatusAuthenticated(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tiktok"})
	require.NoError(t, f.creds.Put(context.Background(), domain.Credential{
		Platform:     "tiktok",
		AccessToken:  "tok-A",
		CreatedAt:    time.Now().Unix(),
		ExpireIn:     86400,
		AdvertiserID: "7123456789012345678",
	}))

	w := f.do(http.MethodGet, "/auth/tiktok/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["authenticated"])
	require.Equal(t, false, body["expired"])
	require.Equal(t, true, body["auto_refresh_enabled"])
	require.Equal(t, "7123456789012345678", body["advertiser_id"])
	require.InDelta(t, 1439, body["expires_in_minutes"], 1)
}

func TestRefreshWithoutCredential(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tiktok"})

	w := f.do(http.MethodPost, "/auth/tiktok/refresh")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "authentication_required", body["error"])
	require.Equal(t, "/auth/tiktok", body["auth_url"])
}

func TestLogout(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "shopee"})
	require.NoError(t, f.creds.Put(context.Background(), domain.Credential{
		Platform:    "shopee",
		AccessToken: "tok-A",
		CreatedAt:   time.Now().Unix(),
		ExpireIn:    14400,
	}))

	w := f.do(http.MethodPost, "/auth/shopee/logout")
	require.Equal(t, http.StatusOK, w.Code)

	_, err := f.creds.Get(context.Background(), "shopee")
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestProxyPassesThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-A", r.Header.Get("Authorization"))
		require.Equal(t, "/campaign/get/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"list":[]}}`))
	}))
	defer upstream.Close()

	f := newFixture(t, &stubAdapter{name: "tiktok", upstreamBase: upstream.URL})
	require.NoError(t, f.creds.Put(context.Background(), domain.Credential{
		Platform:    "tiktok",
		AccessToken: "tok-A",
		CreatedAt:   time.Now().Unix(),
		ExpireIn:    86400,
	}))

	w := f.do(http.MethodGet, "/proxy/tiktok/campaign/get/?page_size=50")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"code":0,"data":{"list":[]}}`, w.Body.String())
}

func TestProxyWithoutCredential(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tiktok", upstreamBase: "https://upstream.test"})

	w := f.do(http.MethodGet, "/proxy/tiktok/campaign/get/")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "authentication_required", body["error"])
	require.Equal(t, "/auth/tiktok", body["auth_url"])
}

func TestProxyUpstreamRejectionKeepsStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"msg":"invalid_access_token"}`))
	}))
	defer upstream.Close()

	f := newFixture(t, &stubAdapter{name: "tiktok", upstreamBase: upstream.URL})
	require.NoError(t, f.creds.Put(context.Background(), domain.Credential{
		Platform:    "tiktok",
		AccessToken: "tok-A",
		CreatedAt:   time.Now().Unix(),
		ExpireIn:    86400,
	}))

	w := f.do(http.MethodGet, "/proxy/tiktok/campaign/get/")
	require.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "upstream error", body["error"])
	require.Equal(t, float64(http.StatusForbidden), body["status"])
	require.Equal(t, map[string]any{"msg": "invalid_access_token"}, body["message"])
}

func TestProxyUnreachableUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	f := newFixture(t, &stubAdapter{name: "tiktok", upstreamBase: upstream.URL})
	require.NoError(t, f.creds.Put(context.Background(), domain.Credential{
		Platform:    "tiktok",
		AccessToken: "tok-A",
		CreatedAt:   time.Now().Unix(),
		ExpireIn:    86400,
	}))

	w := f.do(http.MethodGet, "/proxy/tiktok/campaign/get/")
	require.Equal(t, http.StatusBadGateway, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "no response", body["error"])
	require.NotEmpty(t, body["message"])
}
