// Package signing implements the partner API request signature: a keyed
// SHA-256 HMAC over an order-sensitive concatenation of request fields.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Signer computes hex HMAC-SHA256 signatures for one partner key pair.
// Identical inputs always produce the identical signature.
type Signer struct {
	partnerID  string
	partnerKey []byte
}

// New creates a Signer for the given partner credentials.
func New(partnerID, partnerKey string) *Signer {
	return &Signer{partnerID: partnerID, partnerKey: []byte(partnerKey)}
}

// PartnerID returns the partner identifier attached alongside signatures.
func (s *Signer) PartnerID() string {
	return s.partnerID
}

// Sign computes the unscoped signature over partner_id + api_path + timestamp.
// The concatenation order and absence of separators are a wire contract.
func (s *Signer) Sign(apiPath string, timestamp int64) string {
	return s.digest(s.partnerID + apiPath + strconv.FormatInt(timestamp, 10))
}

// SignShop computes the shop-scoped signature over
// partner_id + api_path + timestamp + shop_id.
func (s *Signer) SignShop(apiPath string, timestamp int64, shopID string) string {
	return s.digest(s.partnerID + apiPath + strconv.FormatInt(timestamp, 10) + shopID)
}

func (s *Signer) digest(base string) string {
	mac := hmac.New(sha256.New, s.partnerKey)
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}
