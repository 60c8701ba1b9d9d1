package signing_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poke08888/tiktok-ads-dashboard/internal/signing"
)

func TestSignDeterminism(t *testing.T) {
	s := signing.New("2011192", "partner-key")

	first := s.Sign("/api/v2/shop/auth_partner", 1700000000)
	second := s.Sign("/api/v2/shop/auth_partner", 1700000000)
	require.Equal(t, first, second)
	require.Len(t, first, 64)

	// Independently computable: hex(HMAC-SHA256(key, partner_id+path+ts)).
	mac := hmac.New(sha256.New, []byte("partner-key"))
	mac.Write([]byte("2011192/api/v2/shop/auth_partner1700000000"))
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), first)
}

func TestSignInputSensitivity(t *testing.T) {
	s := signing.New("2011192", "partner-key")
	base := s.Sign("/api/v2/shop/auth_partner", 1700000000)

	require.NotEqual(t, base, s.Sign("/api/v2/shop/auth_partner", 1700000001))
	require.NotEqual(t, base, s.Sign("/api/v2/auth/token/get", 1700000000))
	require.NotEqual(t, base, signing.New("2011193", "partner-key").Sign("/api/v2/shop/auth_partner", 1700000000))
	require.NotEqual(t, base, signing.New("2011192", "other-key").Sign("/api/v2/shop/auth_partner", 1700000000))
}

func TestSignShopIncludesShopID(t *testing.T) {
	s := signing.New("2011192", "partner-key")

	scoped := s.SignShop("/api/v2/order/get_order_list", 1700000000, "226289")
	require.NotEqual(t, s.Sign("/api/v2/order/get_order_list", 1700000000), scoped)

	// Shop-scoped base string appends the shop id with no separator.
	mac := hmac.New(sha256.New, []byte("partner-key"))
	mac.Write([]byte("2011192/api/v2/order/get_order_list1700000000226289"))
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), scoped)
}
