package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/secret"
)

// Compile-time interface assertions.
var (
	_ CredentialStore = (*PostgresCredentialStore)(nil)
	_ AttemptStore    = (*PostgresAttemptStore)(nil)
)

// PostgresCredentialStore implements CredentialStore on a single-row-per-
// platform table. Row writes are atomic; concurrent writers follow
// last-write-wins.
type PostgresCredentialStore struct {
	db     *pgxpool.Pool
	cipher *secret.Cipher
	logger *zap.Logger
}

func NewPostgresCredentialStore(db *pgxpool.Pool, cipher *secret.Cipher, logger *zap.Logger) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db, cipher: cipher, logger: logger}
}

func (s *PostgresCredentialStore) Get(ctx context.Context, platform string) (domain.Credential, error) {
	var (
		cred           domain.Credential
		accessToken    string
		refreshToken   string
		scope          string
		additionalData []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT platform, access_token, refresh_token, created_at, expire_in,
		       shop_id, advertiser_id, scope, additional_data, updated_at
		FROM credentials WHERE platform = $1`, platform,
	).Scan(
		&cred.Platform,
		&accessToken,
		&refreshToken,
		&cred.CreatedAt,
		&cred.ExpireIn,
		&cred.ShopID,
		&cred.AdvertiserID,
		&scope,
		&additionalData,
		&cred.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("get credential: %w", err)
	}

	// Decryption failure means the key changed or the row is corrupt. Either
	// way the credential is unusable, so it reads as absent.
	if accessToken != "" {
		if cred.AccessToken, err = s.cipher.Decrypt(accessToken); err != nil {
			s.log().Warn("credential access_token failed to decrypt", zap.String("platform", platform), zap.Error(err))
			return domain.Credential{}, domain.ErrCredentialNotFound
		}
	}
	if refreshToken != "" {
		if cred.RefreshToken, err = s.cipher.Decrypt(refreshToken); err != nil {
			s.log().Warn("credential refresh_token failed to decrypt", zap.String("platform", platform), zap.Error(err))
			return domain.Credential{}, domain.ErrCredentialNotFound
		}
	}

	cred.Scope = splitScope(scope)
	if len(additionalData) > 0 {
		if err := json.Unmarshal(additionalData, &cred.AdditionalData); err != nil {
			s.log().Warn("credential additional_data is not valid json", zap.String("platform", platform), zap.Error(err))
		}
	}

	return cred, nil
}

func (s *PostgresCredentialStore) Put(ctx context.Context, cred domain.Credential) error {
	accessToken, err := s.encryptIfSet(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access_token: %w", err)
	}
	refreshToken, err := s.encryptIfSet(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh_token: %w", err)
	}

	var additionalData []byte
	if cred.AdditionalData != nil {
		if additionalData, err = json.Marshal(cred.AdditionalData); err != nil {
			return fmt.Errorf("marshal additional_data: %w", err)
		}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO credentials
			(platform, access_token, refresh_token, created_at, expire_in,
			 shop_id, advertiser_id, scope, additional_data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (platform) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			created_at = EXCLUDED.created_at,
			expire_in = EXCLUDED.expire_in,
			shop_id = EXCLUDED.shop_id,
			advertiser_id = EXCLUDED.advertiser_id,
			scope = EXCLUDED.scope,
			additional_data = EXCLUDED.additional_data,
			updated_at = EXCLUDED.updated_at`,
		cred.Platform,
		accessToken,
		refreshToken,
		cred.CreatedAt,
		cred.ExpireIn,
		cred.ShopID,
		cred.AdvertiserID,
		strings.Join(cred.Scope, " "),
		additionalData,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func (s *PostgresCredentialStore) Delete(ctx context.Context, platform string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM credentials WHERE platform = $1`, platform); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *PostgresCredentialStore) encryptIfSet(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return s.cipher.Encrypt(value)
}

func (s *PostgresCredentialStore) log() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return zap.L()
}

// PostgresAttemptStore implements AttemptStore. Attempts live in their own
// table so concurrent authorization starts never clobber a real credential.
type PostgresAttemptStore struct {
	db  *pgxpool.Pool
	ttl time.Duration
}

func NewPostgresAttemptStore(db *pgxpool.Pool, ttl time.Duration) *PostgresAttemptStore {
	return &PostgresAttemptStore{db: db, ttl: ttl}
}

func (s *PostgresAttemptStore) Put(ctx context.Context, attempt domain.AuthorizationAttempt) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO auth_attempts (platform, code_verifier, state, redirect_uri, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (platform) DO UPDATE SET
			code_verifier = EXCLUDED.code_verifier,
			state = EXCLUDED.state,
			redirect_uri = EXCLUDED.redirect_uri,
			created_at = EXCLUDED.created_at`,
		attempt.Platform,
		attempt.CodeVerifier,
		attempt.State,
		attempt.RedirectURI,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put attempt: %w", err)
	}
	return nil
}

func (s *PostgresAttemptStore) Take(ctx context.Context, platform string) (domain.AuthorizationAttempt, error) {
	var attempt domain.AuthorizationAttempt
	err := s.db.QueryRow(ctx, `
		DELETE FROM auth_attempts WHERE platform = $1
		RETURNING platform, code_verifier, state, redirect_uri, created_at`, platform,
	).Scan(
		&attempt.Platform,
		&attempt.CodeVerifier,
		&attempt.State,
		&attempt.RedirectURI,
		&attempt.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AuthorizationAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.AuthorizationAttempt{}, fmt.Errorf("take attempt: %w", err)
	}

	if time.Now().Unix()-attempt.CreatedAt > int64(s.ttl.Seconds()) {
		return domain.AuthorizationAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func splitScope(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
