// Package lifecycle owns credential expiry computation, refresh-threshold
// decisions, and atomic credential replacement.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/repository"
)

// DefaultRefreshThreshold is the remaining-validity cutoff below which a
// proactive refresh is attempted.
const DefaultRefreshThreshold = 30 * time.Minute

// Refresher exchanges a stored refresh token for a brand-new credential at
// the upstream token endpoint. Implementations must not write the store.
type Refresher interface {
	Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error)
}

// Status describes the stored credential relative to wall-clock time.
type Status struct {
	Exists           bool
	Expired          bool
	ExpiresAt        int64
	RemainingSeconds int64
}

// Manager decides when a credential is usable, refreshable, or dead.
// Refreshes for one platform are serialized by a per-platform mutex and
// deduplicated with singleflight, so concurrent near-expiry requests share
// one upstream refresh call.
type Manager struct {
	store      repository.CredentialStore
	refreshers map[string]Refresher
	threshold  time.Duration
	logger     *zap.Logger
	now        func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager wires the lifecycle manager.
func NewManager(store repository.CredentialStore, refreshers map[string]Refresher, threshold time.Duration, logger *zap.Logger, opts ...Option) *Manager {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	m := &Manager{
		store:      store,
		refreshers: refreshers,
		threshold:  threshold,
		logger:     logger,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status reports existence, expiry, and remaining validity for a platform.
// A missing credential yields a zero Status with Exists=false, not an error.
func (m *Manager) Status(ctx context.Context, platform string) (Status, error) {
	cred, err := m.store.Get(ctx, platform)
	if err == domain.ErrCredentialNotFound {
		return Status{Exists: false, Expired: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("credential status: %w", err)
	}

	now := m.now().Unix()
	return Status{
		Exists:           true,
		Expired:          cred.Expired(now),
		ExpiresAt:        cred.ExpiresAt(),
		RemainingSeconds: cred.RemainingSeconds(now),
	}, nil
}

// EnsureFresh returns a usable credential for the platform, refreshing it
// proactively when its remaining validity drops below the threshold.
//
// A missing credential fails with ErrAuthenticationRequired and a fully
// expired one with ErrTokenExpired; refresh tokens of expired grants are
// assumed invalid, so the caller must re-authorize. A failed proactive
// refresh degrades to returning the old, soon-to-expire credential so
// in-flight requests can still attempt the call.
func (m *Manager) EnsureFresh(ctx context.Context, platform string) (domain.Credential, error) {
	cred, err := m.store.Get(ctx, platform)
	if err == domain.ErrCredentialNotFound {
		return domain.Credential{}, domain.ErrAuthenticationRequired
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("ensure fresh: %w", err)
	}

	now := m.now().Unix()
	if cred.Expired(now) {
		return domain.Credential{}, domain.ErrTokenExpired
	}
	if cred.RemainingSeconds(now) >= int64(m.threshold.Seconds()) {
		return cred, nil
	}

	fresh, err := m.refresh(ctx, platform)
	if err != nil {
		m.log().Warn("proactive refresh failed, serving soon-to-expire credential",
			zap.String("platform", platform),
			zap.Int64("remaining_seconds", cred.RemainingSeconds(now)),
			zap.Error(err))
		return cred, nil
	}
	return fresh, nil
}

// Refresh replaces the stored credential with a freshly issued one. On any
// failure the old row is left byte-for-byte untouched. No retries: retry
// policy belongs to the caller.
func (m *Manager) Refresh(ctx context.Context, platform string) error {
	_, err := m.refresh(ctx, platform)
	return err
}

func (m *Manager) refresh(ctx context.Context, platform string) (domain.Credential, error) {
	v, err, _ := m.group.Do(platform, func() (any, error) {
		lock := m.platformLock(platform)
		lock.Lock()
		defer lock.Unlock()

		cred, err := m.store.Get(ctx, platform)
		if err == domain.ErrCredentialNotFound {
			return nil, domain.ErrAuthenticationRequired
		}
		if err != nil {
			return nil, fmt.Errorf("refresh: %w", err)
		}
		if cred.RefreshToken == "" {
			return nil, fmt.Errorf("%w: no refresh token stored", domain.ErrRefreshFailed)
		}

		refresher, ok := m.refreshers[platform]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrPlatformUnknown, platform)
		}

		fresh, err := refresher.Refresh(ctx, cred)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
		}

		fresh.Platform = platform
		if fresh.CreatedAt == 0 {
			fresh.CreatedAt = m.now().Unix()
		}
		if err := m.store.Put(ctx, fresh); err != nil {
			return nil, fmt.Errorf("persist refreshed credential: %w", err)
		}

		m.log().Info("credential refreshed",
			zap.String("platform", platform),
			zap.Int64("expire_in", fresh.ExpireIn))
		return fresh, nil
	})
	if err != nil {
		return domain.Credential{}, err
	}
	return v.(domain.Credential), nil
}

func (m *Manager) platformLock(platform string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[platform]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[platform] = lock
	}
	return lock
}

func (m *Manager) log() *zap.Logger {
	if m.logger != nil {
		return m.logger
	}
	return zap.L()
}
