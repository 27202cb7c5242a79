package services

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/types"
)

func nowPlusMinutes(m int) int64 {
	return time.Now().UTC().Add(time.Duration(m) * time.Minute).UnixMilli()
}

func TestCountApprovals(t *testing.T) {
	approvals := []*types.GuardianApprovalDB{
		{GuardianID: "g1", ApprovedAt: 100},
		{GuardianID: "g2", ApprovedAt: 0},
		{GuardianID: "g3", ApprovedAt: 200},
	}
	assert.Equal(t, 2, CountApprovals(approvals))
}

func TestCountApprovalsDuplicateGuardianCountsOnce(t *testing.T) {
	approvals := []*types.GuardianApprovalDB{
		{GuardianID: "g1", ApprovedAt: 100},
		{GuardianID: "g1", ApprovedAt: 150},
		{GuardianID: "g2", ApprovedAt: 200},
	}
	assert.Equal(t, 2, CountApprovals(approvals))
}

func TestCountApprovalsEmpty(t *testing.T) {
	assert.Equal(t, 0, CountApprovals(nil))
	assert.Equal(t, 0, CountApprovals([]*types.GuardianApprovalDB{nil}))
}

func setTestSigningKeys(t *testing.T) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	oldPub, oldPriv := global.PublicKey, global.PrivateKey
	global.PublicKey, global.PrivateKey = pub, priv
	t.Cleanup(func() {
		global.PublicKey, global.PrivateKey = oldPub, oldPriv
	})
}

func TestContextTokenRoundTrip(t *testing.T) {
	setTestSigningKeys(t)
	s := &RecoveryService{}

	expiresAt := nowPlusMinutes(30)
	token, err := s.mintContextToken("challenge-1", "user-1", expiresAt)
	assert.NoError(t, err)

	challengeID, userID, jti, vErr := s.verifyContextToken(token)
	assert.NoError(t, vErr)
	assert.Equal(t, "challenge-1", challengeID)
	assert.Equal(t, "user-1", userID)
	assert.NotEmpty(t, jti)
}

func TestContextTokenRejectsForeignSigner(t *testing.T) {
	setTestSigningKeys(t)
	s := &RecoveryService{}

	token, err := s.mintContextToken("challenge-1", "user-1", nowPlusMinutes(30))
	assert.NoError(t, err)

	// rotate the server key; the old token no longer verifies
	setTestSigningKeys(t)
	_, _, _, vErr := s.verifyContextToken(token)
	assert.ErrorIs(t, vErr, types.ErrBadRequest)
}

func TestContextTokenRejectsExpired(t *testing.T) {
	setTestSigningKeys(t)
	s := &RecoveryService{}

	token, err := s.mintContextToken("challenge-1", "user-1", nowPlusMinutes(-1))
	assert.NoError(t, err)

	_, _, _, vErr := s.verifyContextToken(token)
	assert.ErrorIs(t, vErr, types.ErrBadRequest)
}

func TestContextTokenRejectsGarbage(t *testing.T) {
	setTestSigningKeys(t)
	s := &RecoveryService{}
	_, _, _, err := s.verifyContextToken("not.a.jwt")
	assert.ErrorIs(t, err, types.ErrBadRequest)
}
