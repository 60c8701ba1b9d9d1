package domain

// Credential is the persisted token set for one partner platform. Exactly one
// live credential exists per platform; writing a new one supersedes the
// previous row.
type Credential struct {
	Platform       string
	AccessToken    string
	RefreshToken   string
	CreatedAt      int64
	ExpireIn       int64
	ShopID         string
	AdvertiserID   string
	Scope          []string
	AdditionalData map[string]any
	UpdatedAt      int64
}

// ExpiresAt returns the epoch second at which the credential stops being valid.
func (c Credential) ExpiresAt() int64 {
	return c.CreatedAt + c.ExpireIn
}

// Expired reports whether the credential is past its validity window at now.
func (c Credential) Expired(now int64) bool {
	return now >= c.ExpiresAt()
}

// RemainingSeconds returns seconds of validity left at now, never negative.
func (c Credential) RemainingSeconds(now int64) int64 {
	remaining := c.ExpiresAt() - now
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SubjectID returns the platform-scoped subject identifier, whichever is set.
func (c Credential) SubjectID() string {
	if c.ShopID != "" {
		return c.ShopID
	}
	return c.AdvertiserID
}

// AuthorizationAttempt is the ephemeral state of one in-flight authorization
// handshake. It is created when an authorization URL is issued and consumed
// exactly once when the callback exchanges the code.
type AuthorizationAttempt struct {
	Platform     string
	CodeVerifier string
	State        string
	RedirectURI  string
	CreatedAt    int64
}
