// Package service orchestrates the authorization handshake and credential
// lifecycle on top of the platform adapters and stores.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/lifecycle"
	"github.com/poke08888/tiktok-ads-dashboard/internal/platform"
	"github.com/poke08888/tiktok-ads-dashboard/internal/repository"
)

// FlowService drives the per-platform authorization state machine:
// unauthenticated -> URL issued (attempt stored) -> awaiting callback ->
// exchanging -> authenticated, or back to unauthenticated with a surfaced
// error. Attempts live in their own store so concurrent authorization
// starts never clobber a live credential.
type FlowService struct {
	adapters  platform.Registry
	creds     repository.CredentialStore
	attempts  repository.AttemptStore
	lifecycle *lifecycle.Manager
	logger    *zap.Logger
	now       func() time.Time
}

// NewFlowService wires the flow service.
func NewFlowService(
	adapters platform.Registry,
	creds repository.CredentialStore,
	attempts repository.AttemptStore,
	manager *lifecycle.Manager,
	logger *zap.Logger,
) *FlowService {
	return &FlowService{
		adapters:  adapters,
		creds:     creds,
		attempts:  attempts,
		lifecycle: manager,
		logger:    logger,
		now:       time.Now,
	}
}

// StatusOutput describes the stored credential for the status endpoint.
type StatusOutput struct {
	Authenticated    bool
	Expired          bool
	ExpiresAt        int64
	RemainingSeconds int64
	ExpiresInMinutes int64
	Scope            []string
	ShopID           string
	AdvertiserID     string
}

// Begin issues the authorization URL for a platform, persisting the attempt
// when the platform's flow requires proof of possession.
func (s *FlowService) Begin(ctx context.Context, platformName, redirectURI string, scopes []string) (string, error) {
	adapter, err := s.adapters.Get(platformName)
	if err != nil {
		return "", err
	}

	auth, err := adapter.Begin(ctx, platform.BeginParams{RedirectURI: redirectURI, Scopes: scopes})
	if err != nil {
		return "", fmt.Errorf("begin authorization: %w", err)
	}

	if auth.Attempt != nil {
		if err := s.attempts.Put(ctx, *auth.Attempt); err != nil {
			return "", fmt.Errorf("persist attempt: %w", err)
		}
	}

	s.log().Info("authorization started", zap.String("platform", platformName))
	return auth.URL, nil
}

// Callback completes the code exchange and persists the resulting
// credential. Nothing is written on failure.
func (s *FlowService) Callback(ctx context.Context, platformName string, cb platform.CallbackParams) error {
	adapter, err := s.adapters.Get(platformName)
	if err != nil {
		return err
	}
	if cb.Code == "" {
		return fmt.Errorf("%w: missing authorization code", domain.ErrInvalidRequest)
	}

	var attempt *domain.AuthorizationAttempt
	if adapter.RequiresAttempt() {
		taken, err := s.attempts.Take(ctx, platformName)
		if err != nil {
			return err
		}
		if taken.State != "" && cb.State != taken.State {
			return domain.ErrInvalidState
		}
		attempt = &taken
	}

	cred, err := adapter.Exchange(ctx, cb, attempt)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	cred.Platform = platformName
	if cred.CreatedAt == 0 {
		cred.CreatedAt = s.now().Unix()
	}
	if err := s.creds.Put(ctx, cred); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	s.log().Info("authorization completed",
		zap.String("platform", platformName),
		zap.Int64("expire_in", cred.ExpireIn))
	return nil
}

// Status reports the stored credential's validity window and metadata.
func (s *FlowService) Status(ctx context.Context, platformName string) (*StatusOutput, error) {
	if _, err := s.adapters.Get(platformName); err != nil {
		return nil, err
	}

	status, err := s.lifecycle.Status(ctx, platformName)
	if err != nil {
		return nil, err
	}
	if !status.Exists {
		return &StatusOutput{Authenticated: false, Expired: true}, nil
	}

	cred, err := s.creds.Get(ctx, platformName)
	if err == domain.ErrCredentialNotFound {
		return &StatusOutput{Authenticated: false, Expired: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential status: %w", err)
	}

	return &StatusOutput{
		Authenticated:    true,
		Expired:          status.Expired,
		ExpiresAt:        status.ExpiresAt,
		RemainingSeconds: status.RemainingSeconds,
		ExpiresInMinutes: status.RemainingSeconds / 60,
		Scope:            cred.Scope,
		ShopID:           cred.ShopID,
		AdvertiserID:     cred.AdvertiserID,
	}, nil
}

// Refresh manually replaces the stored credential.
func (s *FlowService) Refresh(ctx context.Context, platformName string) error {
	if _, err := s.adapters.Get(platformName); err != nil {
		return err
	}
	return s.lifecycle.Refresh(ctx, platformName)
}

// Logout removes the stored credential.
func (s *FlowService) Logout(ctx context.Context, platformName string) error {
	if _, err := s.adapters.Get(platformName); err != nil {
		return err
	}
	if err := s.creds.Delete(ctx, platformName); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	s.log().Info("credential deleted", zap.String("platform", platformName))
	return nil
}

func (s *FlowService) log() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return zap.L()
}
