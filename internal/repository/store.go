package repository

import (
	"context"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
)

// CredentialStore persists one credential per platform key with upsert
// semantics. Secret fields are encrypted at rest; a row that fails to
// decrypt reads as absent.
type CredentialStore interface {
	Get(ctx context.Context, platform string) (domain.Credential, error)
	Put(ctx context.Context, cred domain.Credential) error
	Delete(ctx context.Context, platform string) error
}

// AttemptStore holds in-flight authorization attempts, keyed by platform and
// bounded by a TTL. Take consumes the attempt: a second Take for the same
// platform fails until a new attempt is stored.
type AttemptStore interface {
	Put(ctx context.Context, attempt domain.AuthorizationAttempt) error
	Take(ctx context.Context, platform string) (domain.AuthorizationAttempt, error)
}
