package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/lifecycle"
	"github.com/poke08888/tiktok-ads-dashboard/internal/platform"
	"github.com/poke08888/tiktok-ads-dashboard/internal/repository"
	"github.com/poke08888/tiktok-ads-dashboard/internal/service"
)

// fakeAdapter is a scriptable platform.Adapter.
type fakeAdapter struct {
	name            string
	requiresAttempt bool
	authorization   *platform.Authorization
	beginErr        error
	exchanged       domain.Credential
	exchangeErr     error
	gotCallback     platform.CallbackParams
	gotAttempt      *domain.AuthorizationAttempt
}

func (f *fakeAdapter) Name() string          { return f.name }
func (f *fakeAdapter) RequiresAttempt() bool { return f.requiresAttempt }

func (f *fakeAdapter) Begin(ctx context.Context, p platform.BeginParams) (*platform.Authorization, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.authorization, nil
}

func (f *fakeAdapter) Exchange(ctx context.Context, cb platform.CallbackParams, attempt *domain.AuthorizationAttempt) (domain.Credential, error) {
	f.gotCallback = cb
	f.gotAttempt = attempt
	return f.exchanged, f.exchangeErr
}

func (f *fakeAdapter) Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	return domain.Credential{}, errors.New("not scripted")
}

func (f *fakeAdapter) UpstreamURL(apiPath string) string { return "https://upstream.test" + apiPath }

func (f *fakeAdapter) Authenticate(req *http.Request, apiPath string, cred domain.Credential) {}

type env struct {
	flow     *service.FlowService
	adapter  *fakeAdapter
	creds    *repository.MemoryCredentialStore
	attempts *repository.MemoryAttemptStore
}

func newEnv(t *testing.T, adapter *fakeAdapter) *env {
	t.Helper()
	creds := repository.NewMemoryCredentialStore()
	attempts := repository.NewMemoryAttemptStore(5 * time.Minute)
	manager := lifecycle.NewManager(creds, nil, 30*time.Minute, zap.NewNop())
	registry := platform.Registry{adapter.name: adapter}
	return &env{
		flow:     service.NewFlowService(registry, creds, attempts, manager, zap.NewNop()),
		adapter:  adapter,
		creds:    creds,
		attempts: attempts,
	}
}

func TestBeginUnknownPlatform(t *testing.T) {
	e := newEnv(t, &fakeAdapter{name: "tiktok"})

	_, err := e.flow.Begin(context.Background(), "lazada", "", nil)
	require.ErrorIs(t, err, domain.ErrPlatformUnknown)
}

func TestBeginPersistsAttempt(t *testing.T) {
	adapter := &fakeAdapter{
		name:            "tiktok",
		requiresAttempt: true,
		authorization: &platform.Authorization{
			URL: "https://auth.test/?code_challenge=c",
			Attempt: &domain.AuthorizationAttempt{
				Platform:     "tiktok",
				CodeVerifier: "verifier",
				State:        "state-1",
				CreatedAt:    time.Now().Unix(),
			},
		},
	}
	e := newEnv(t, adapter)

	authURL, err := e.flow.Begin(context.Background(), "tiktok", "", nil)
	require.NoError(t, err)
	require.Equal(t, "https://auth.test/?code_challenge=c", authURL)

	taken, err := e.attempts.Take(context.Background(), "tiktok")
	require.NoError(t, err)
	require.Equal(t, "verifier", taken.CodeVerifier)
}

func TestBeginWithoutAttempt(t *testing.T) {
	adapter := &fakeAdapter{
		name:          "shopee",
		authorization: &platform.Authorization{URL: "https://partner.test/auth"},
	}
	e := newEnv(t, adapter)

	authURL, err := e.flow.Begin(context.Background(), "shopee", "", nil)
	require.NoError(t, err)
	require.Equal(t, "https://partner.test/auth", authURL)

	_, err = e.attempts.Take(context.Background(), "shopee")
	require.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func TestCallbackMissingCode(t *testing.T) {
	e := newEnv(t, &fakeAdapter{name: "shopee"})

	err := e.flow.Callback(context.Background(), "shopee", platform.CallbackParams{})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestCallbackConsumesAttemptAndStoresCredential(t *testing.T) {
	adapter := &fakeAdapter{
		name:            "tiktok",
		requiresAttempt: true,
		exchanged: domain.Credential{
			Platform:    "tiktok",
			AccessToken: "tok-A",
			CreatedAt:   1000,
			ExpireIn:    86400,
		},
	}
	e := newEnv(t, adapter)
	require.NoError(t, e.attempts.Put(context.Background(), domain.AuthorizationAttempt{
		Platform:     "tiktok",
		CodeVerifier: "verifier",
		State:        "state-1",
		CreatedAt:    time.Now().Unix(),
	}))

	err := e.flow.Callback(context.Background(), "tiktok", platform.CallbackParams{Code: "code", State: "state-1"})
	require.NoError(t, err)
	require.NotNil(t, adapter.gotAttempt)
	require.Equal(t, "verifier", adapter.gotAttempt.CodeVerifier)

	stored, err := e.creds.Get(context.Background(), "tiktok")
	require.NoError(t, err)
	require.Equal(t, "tok-A", stored.AccessToken)

	// The attempt is consumed even on success; a second callback cannot
	// replay it.
	_, err = e.attempts.Take(context.Background(), "tiktok")
	require.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func TestCallbackStateMismatch(t *testing.T) {
	adapter := &fakeAdapter{name: "tiktok", requiresAttempt: true}
	e := newEnv(t, adapter)
	require.NoError(t, e.attempts.Put(context.Background(), domain.AuthorizationAttempt{
		Platform:     "tiktok",
		CodeVerifier: "verifier",
		State:        "state-1",
		CreatedAt:    time.Now().Unix(),
	}))

	err := e.flow.Callback(context.Background(), "tiktok", platform.CallbackParams{Code: "code", State: "state-2"})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = e.creds.Get(context.Background(), "tiktok")
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestCallbackWithoutAttempt(t *testing.T) {
	adapter := &fakeAdapter{name: "tiktok", requiresAttempt: true}
	e := newEnv(t, adapter)

	err := e.flow.Callback(context.Background(), "tiktok", platform.CallbackParams{Code: "code"})
	require.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func TestCallbackExchangeFailureWritesNothing(t *testing.T) {
	adapter := &fakeAdapter{name: "shopee", exchangeErr: errors.New("upstream rejected code")}
	e := newEnv(t, adapter)

	err := e.flow.Callback(context.Background(), "shopee", platform.CallbackParams{Code: "bad"})
	require.Error(t, err)

	_, err = e.creds.Get(context.Background(), "shopee")
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestCallbackDefaultsCreatedAt(t *testing.T) {
	adapter := &fakeAdapter{
		name:      "shopee",
		exchanged: domain.Credential{AccessToken: "tok-A", ExpireIn: 14400},
	}
	e := newEnv(t, adapter)

	require.NoError(t, e.flow.Callback(context.Background(), "shopee", platform.CallbackParams{Code: "code"}))

	stored, err := e.creds.Get(context.Background(), "shopee")
	require.NoError(t, err)
	require.Equal(t, "shopee", stored.Platform)
	require.InDelta(t, time.Now().Unix(), stored.CreatedAt, 5)
}

func TestStatusUnauthenticated(t *testing.T) {
	e := newEnv(t, &fakeAdapter{name: "shopee"})

	status, err := e.flow.Status(context.Background(), "shopee")
	require.NoError(t, err)
	require.False(t, status.Authenticated)
	require.True(t, status.Expired)
}

func TestStatusAuthenticated(t *testing.T) {
	e := newEnv(t, &fakeAdapter{name: "tiktok"})
	require.NoError(t, e.creds.Put(context.Background(), domain.Credential{
		Platform:     "tiktok",
		AccessToken:  "tok-A",
		CreatedAt:    time.Now().Unix(),
		ExpireIn:     7200,
		AdvertiserID: "7123456789012345678",
		Scope:        []string{"ad.read"},
	}))

	status, err := e.flow.Status(context.Background(), "tiktok")
	require.NoError(t, err)
	require.True(t, status.Authenticated)
	require.False(t, status.Expired)
	require.InDelta(t, 7200, status.RemainingSeconds, 5)
	require.InDelta(t, 119, status.ExpiresInMinutes, 1)
	require.Equal(t, "7123456789012345678", status.AdvertiserID)
	require.Equal(t, []string{"ad.read"}, status.Scope)
}

func TestLogoutDeletesCredential(t *testing.T) {
	e := newEnv(t, &fakeAdapter{name: "shopee"})
	require.NoError(t, e.creds.Put(context.Background(), domain.Credential{
		Platform:    "shopee",
		AccessToken: "tok-A",
		CreatedAt:   time.Now().Unix(),
		ExpireIn:    14400,
	}))

	require.NoError(t, e.flow.Logout(context.Background(), "shopee"))

	_, err := e.creds.Get(context.Background(), "shopee")
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)
}
