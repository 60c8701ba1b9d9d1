package repository

import (
	"context"
	"sync"
	"time"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
)

// Compile-time interface assertions.
var (
	_ CredentialStore = (*MemoryCredentialStore)(nil)
	_ AttemptStore    = (*MemoryAttemptStore)(nil)
)

// MemoryCredentialStore is an in-process CredentialStore used by tests and
// local development. Same upsert and last-write-wins semantics as Postgres.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds map[string]domain.Credential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]domain.Credential)}
}

func (s *MemoryCredentialStore) Get(ctx context.Context, platform string) (domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[platform]
	if !ok {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	return cred, nil
}

func (s *MemoryCredentialStore) Put(ctx context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred.UpdatedAt = time.Now().Unix()
	s.creds[cred.Platform] = cred
	return nil
}

func (s *MemoryCredentialStore) Delete(ctx context.Context, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, platform)
	return nil
}

// MemoryAttemptStore is an in-process AttemptStore with consume-once Take
// and TTL expiry.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]domain.AuthorizationAttempt
	ttl      time.Duration

	// Now is overridable for TTL tests.
	Now func() time.Time
}

func NewMemoryAttemptStore(ttl time.Duration) *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts: make(map[string]domain.AuthorizationAttempt),
		ttl:      ttl,
		Now:      time.Now,
	}
}

func (s *MemoryAttemptStore) Put(ctx context.Context, attempt domain.AuthorizationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.Platform] = attempt
	return nil
}

func (s *MemoryAttemptStore) Take(ctx context.Context, platform string) (domain.AuthorizationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[platform]
	if !ok {
		return domain.AuthorizationAttempt{}, domain.ErrAttemptNotFound
	}
	delete(s.attempts, platform)
	if s.Now().Unix()-attempt.CreatedAt > int64(s.ttl.Seconds()) {
		return domain.AuthorizationAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}
