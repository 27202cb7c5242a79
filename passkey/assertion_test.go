package passkey

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zentity-id/go-zentity-server/types"
)

const (
	testRPID   = "zentity.test"
	testOrigin = "https://app.zentity.test"
)

// memCredStore is an in-memory CredentialStore for ceremony tests.
type memCredStore struct {
	creds map[string]*types.PasskeyCredentialDB
}

func newMemCredStore() *memCredStore {
	return &memCredStore{creds: map[string]*types.PasskeyCredentialDB{}}
}

func (m *memCredStore) GetByCredentialID(ctx context.Context, credentialID string) (*types.PasskeyCredentialDB, error) {
	cred, ok := m.creds[credentialID]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (m *memCredStore) UpdateCounter(ctx context.Context, credentialID string, counter uint32, lastUsedAt int64) error {
	cred, ok := m.creds[credentialID]
	if !ok {
		return types.ErrNotFound
	}
	cred.Counter = counter
	cred.LastUsedAt = lastUsedAt
	return nil
}

// authenticator simulates one ES256 platform authenticator.
type authenticator struct {
	priv    *ecdsa.PrivateKey
	counter uint32
	rpID    string
}

func (a *authenticator) coseKey(t *testing.T) []byte {
	t.Helper()
	x := a.priv.X.FillBytes(make([]byte, 32))
	y := a.priv.Y.FillBytes(make([]byte, 32))
	// COSE EC2/ES256 key map, hand-encoded
	key := []byte{0xa5}
	key = append(key, 0x01, 0x02)       // kty: EC2
	key = append(key, 0x03, 0x26)       // alg: ES256 (-7)
	key = append(key, 0x20, 0x01)       // crv: P-256
	key = append(key, 0x21, 0x58, 0x20) // x
	key = append(key, x...)
	key = append(key, 0x22, 0x58, 0x20) // y
	key = append(key, y...)
	return key
}

func (a *authenticator) authData(flags byte) []byte {
	rpIDHash := sha256.Sum256([]byte(a.rpID))
	data := make([]byte, 37)
	copy(data, rpIDHash[:])
	data[32] = flags
	binary.BigEndian.PutUint32(data[33:], a.counter)
	return data
}

// assert produces a complete assertion over the given challenge.
func (a *authenticator) assert(t *testing.T, challengeID string, challenge []byte, origin string, flags byte) *types.AssertionInput {
	t.Helper()
	a.counter++

	cd := map[string]string{
		"type":      "webauthn.get",
		"challenge": base64.RawURLEncoding.EncodeToString(challenge),
		"origin":    origin,
	}
	clientDataJSON, _ := json.Marshal(cd)
	authData := a.authData(flags)

	cdHash := sha256.Sum256(clientDataJSON)
	signed := append(append([]byte{}, authData...), cdHash[:]...)
	digest := sha256.Sum256(signed)
	sig, err := ecdsa.SignASN1(rand.Reader, a.priv, digest[:])
	if err != nil {
		t.Fatal(err)
	}

	return &types.AssertionInput{
		ChallengeID:       challengeID,
		CredentialID:      "cred-1",
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		Signature:         base64.RawURLEncoding.EncodeToString(sig),
	}
}

func setupCeremony(t *testing.T) (*Verifier, *ChallengeStore, *memCredStore, *authenticator) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	auth := &authenticator{priv: priv, rpID: testRPID}

	store := newMemCredStore()
	challenges := NewChallengeStore()
	verifier := NewVerifier(challenges, store, testRPID, testOrigin)

	store.creds["cred-1"] = &types.PasskeyCredentialDB{
		CredentialID: "cred-1",
		UserID:       "user-1",
		PublicKey:    auth.coseKey(t),
		Counter:      0,
	}
	return verifier, challenges, store, auth
}

func TestVerifyAssertionSuccess(t *testing.T) {
	verifier, challenges, store, auth := setupCeremony(t)

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, testOrigin, flagUserPresent)

	result, err := verifier.VerifyAssertion(context.Background(), input)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", result.UserID)
	assert.Equal(t, "cred-1", result.CredentialID)
	assert.Equal(t, uint32(1), result.NewCounter)
	assert.Equal(t, uint32(1), store.creds["cred-1"].Counter)
}

func TestVerifyAssertionChallengeSingleUse(t *testing.T) {
	verifier, challenges, _, auth := setupCeremony(t)

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, testOrigin, flagUserPresent)

	_, err := verifier.VerifyAssertion(context.Background(), input)
	assert.NoError(t, err)

	// replaying the same assertion fails on the consumed challenge
	_, err = verifier.VerifyAssertion(context.Background(), input)
	assert.ErrorIs(t, err, types.ErrChallengeNotFound)
}

func TestVerifyAssertionWrongChallengeValue(t *testing.T) {
	verifier, challenges, _, auth := setupCeremony(t)

	ch, _ := challenges.Issue()
	other := make([]byte, ChallengeSize)
	input := auth.assert(t, ch.ID, other, testOrigin, flagUserPresent)

	_, err := verifier.VerifyAssertion(context.Background(), input)
	assert.ErrorIs(t, err, types.ErrChallengeMismatch)
}

func TestVerifyAssertionWrongOrigin(t *testing.T) {
	verifier, challenges, _, auth := setupCeremony(t)

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, "https://evil.example", flagUserPresent)

	_, err := verifier.VerifyAssertion(context.Background(), input)
	assert.ErrorIs(t, err, types.ErrOriginMismatch)
}

func TestVerifyAssertionWrongRelyingParty(t *testing.T) {
	verifier, challenges, _, auth := setupCeremony(t)
	auth.rpID = "other.test"

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, testOrigin, flagUserPresent)

	_, err := verifier.VerifyAssertion(context.Background(), input)
	assert.ErrorIs(t, err, types.ErrRelyingPartyMismatch)
}

func TestVerifyAssertionUserPresenceRequired(t *testing.T) {
	verifier, challenges, _, auth := setupCeremony(t)

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, testOrigin, 0x00)

	_, err := verifier.VerifyAssertion(context.Background(), input)
	assert.ErrorIs(t, err, types.ErrUserPresenceMissing)
}

func TestVerifyAssertionCounterReplay(t *testing.T) {
	verifier, challenges, store, auth := setupCeremony(t)
	store.creds["cred-1"].Counter = 10
	auth.counter = 10 // next assertion reports 11

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, testOrigin, flagUserPresent)
	_, err := verifier.VerifyAssertion(context.Background(), input)
	assert.NoError(t, err)

	// a cloned authenticator stuck at an old counter is rejected
	auth.counter = 4
	ch2, _ := challenges.Issue()
	input = auth.assert(t, ch2.ID, ch2.Value, testOrigin, flagUserPresent)
	_, err = verifier.VerifyAssertion(context.Background(), input)
	assert.ErrorIs(t, err, types.ErrCounterReplay)
	assert.Equal(t, uint32(11), store.creds["cred-1"].Counter)
}

func TestVerifyAssertionZeroCounterSkipsReplayCheck(t *testing.T) {
	verifier, challenges, store, auth := setupCeremony(t)
	store.creds["cred-1"].Counter = 0
	// a cloud-synced passkey that never counts always reports 0
	auth.counter = ^uint32(0) // wraps to 0 on the increment in assert

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, testOrigin, flagUserPresent)

	_, err := verifier.VerifyAssertion(context.Background(), input)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), store.creds["cred-1"].Counter)
}

func TestVerifyAssertionTamperedSignature(t *testing.T) {
	verifier, challenges, _, auth := setupCeremony(t)

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, testOrigin, flagUserPresent)

	sig, _ := base64.RawURLEncoding.DecodeString(input.Signature)
	sig[len(sig)-1] ^= 0x01
	input.Signature = base64.RawURLEncoding.EncodeToString(sig)

	_, err := verifier.VerifyAssertion(context.Background(), input)
	assert.ErrorIs(t, err, types.ErrSignatureInvalid)
}

func TestVerifyAssertionUnknownCredential(t *testing.T) {
	verifier, challenges, _, auth := setupCeremony(t)

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, testOrigin, flagUserPresent)
	input.CredentialID = "cred-unknown"

	_, err := verifier.VerifyAssertion(context.Background(), input)
	assert.ErrorIs(t, err, types.ErrUnknownCredential)
}

func TestVerifyAssertionUserHandleCannotRedirect(t *testing.T) {
	verifier, challenges, _, auth := setupCeremony(t)

	ch, _ := challenges.Issue()
	input := auth.assert(t, ch.ID, ch.Value, testOrigin, flagUserPresent)
	// a spoofed user handle must not override the stored owner
	input.UserHandle = base64.RawURLEncoding.EncodeToString([]byte("attacker"))

	result, err := verifier.VerifyAssertion(context.Background(), input)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", result.UserID)
}
