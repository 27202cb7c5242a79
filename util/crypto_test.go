package util

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zentity-id/go-zentity-server/global"
)

func TestScryptEmailDeterministic(t *testing.T) {
	h1, err := ScryptEmail("ada@zentity.id")
	assert.NoError(t, err)
	h2, err := ScryptEmail("ada@zentity.id")
	assert.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := ScryptEmail("grace@zentity.id")
	assert.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestScryptEmailUsesConfiguredSalt(t *testing.T) {
	plain, err := ScryptEmail("ada@zentity.id")
	assert.NoError(t, err)

	old := global.Conf.EmailSaltHex
	global.Conf.EmailSaltHex = "aabbccddeeff00112233445566778899"
	defer func() { global.Conf.EmailSaltHex = old }()

	salted, err := ScryptEmail("ada@zentity.id")
	assert.NoError(t, err)
	assert.NotEqual(t, plain, salted)
}

func TestBackupCodeRoundTrip(t *testing.T) {
	hash, err := HashBackupCode("XK3P-99QZ", "user-1")
	assert.NoError(t, err)

	assert.True(t, CheckBackupCode("XK3P-99QZ", "user-1", hash))
	assert.False(t, CheckBackupCode("XK3P-99QX", "user-1", hash))
	// same code hashed for another user does not match
	assert.False(t, CheckBackupCode("XK3P-99QZ", "user-2", hash))
}

func TestRandomTokenLengthAndUniqueness(t *testing.T) {
	t1, err := RandomToken(32)
	assert.NoError(t, err)
	t2, err := RandomToken(32)
	assert.NoError(t, err)

	assert.NotEqual(t, t1, t2)
	// 32 bytes base64url without padding is 43 characters
	assert.Len(t, t1, 43)
}
