package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL2HeadersAt(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("topsecret"))
	auth := &HMACAuth{Key: "api-key", Secret: secret, Passphrase: "phrase"}

	headers := auth.L2HeadersAt("0xABC", "POST", "/orders", `{"x":1}`, 1700000000)

	assert.Equal(t, "0xABC", headers["POLY_ADDRESS"])
	assert.Equal(t, "api-key", headers["POLY_API_KEY"])
	assert.Equal(t, "1700000000", headers["POLY_TIMESTAMP"])
	assert.Equal(t, "phrase", headers["POLY_PASSPHRASE"])

	// The signature is HMAC-SHA256(timestamp + method + path + body) keyed
	// by the decoded secret.
	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write([]byte(`1700000000POST/orders{"x":1}`))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, headers["POLY_SIGNATURE"])
}

func TestL2HeadersAtIsDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: base64.StdEncoding.EncodeToString([]byte("s")), Passphrase: "p"}

	a := auth.L2HeadersAt("0x1", "GET", "/price", "", 42)
	b := auth.L2HeadersAt("0x1", "GET", "/price", "", 42)
	assert.Equal(t, a, b)

	c := auth.L2HeadersAt("0x1", "GET", "/price", "", 43)
	assert.NotEqual(t, a["POLY_SIGNATURE"], c["POLY_SIGNATURE"])
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef123456", Secret: "supersecretvalue"}
	s := auth.String()

	require.NotContains(t, s, "abcdef123456")
	require.NotContains(t, s, "supersecretvalue")
	assert.Contains(t, s, "abcd****")
}
