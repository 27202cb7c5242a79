package totp

import (
	"encoding/base32"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// RFC 6238 appendix B vector secret ("12345678901234567890")
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestRFC6238Vectors(t *testing.T) {
	// SHA-1 test vectors, truncated from 8 to the default 6 digits
	cases := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, tc := range cases {
		when := time.Unix(tc.unix, 0).UTC()
		assert.True(t, Verify(tc.code, rfcSecret, when), "t=%d", tc.unix)
	}
}

func TestVerifyAllowsOneStepSkew(t *testing.T) {
	secretBytes, _ := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(rfcSecret)
	when := time.Unix(1111111109, 0).UTC()
	code := computeCode(secretBytes, uint64(when.Unix())/30)

	assert.True(t, Verify(code, rfcSecret, when.Add(-29*time.Second)))
	assert.True(t, Verify(code, rfcSecret, when.Add(29*time.Second)))
	assert.False(t, Verify(code, rfcSecret, when.Add(2*DefaultStep)))
	assert.False(t, Verify(code, rfcSecret, when.Add(-2*DefaultStep)))
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	when := time.Unix(1111111109, 0).UTC()
	assert.False(t, Verify("12345", rfcSecret, when))
	assert.False(t, Verify("1234567", rfcSecret, when))
	assert.False(t, Verify("081804", "not base32!!", when))
	assert.False(t, Verify("", rfcSecret, when))
}

func TestGenerateSecretRoundTrips(t *testing.T) {
	secret, err := GenerateSecret()
	assert.NoError(t, err)

	raw, dErr := decodeSecret(secret)
	assert.NoError(t, dErr)
	assert.Len(t, raw, secretSize)

	// a code computed from the generated secret verifies
	when := time.Now()
	code := computeCode(raw, uint64(when.Unix())/30)
	assert.True(t, Verify(code, secret, when))
}

func TestProvisionURI(t *testing.T) {
	uri := ProvisionURI("user@zentity.id", "Zentity", rfcSecret)
	assert.Contains(t, uri, "otpauth://totp/Zentity:user@zentity.id")
	assert.Contains(t, uri, "secret="+rfcSecret)
	assert.Contains(t, uri, "digits=6")
	assert.Contains(t, uri, "period=30")
}
