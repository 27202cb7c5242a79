package passkey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/zentity-id/go-zentity-server/cose"
	"github.com/zentity-id/go-zentity-server/types"
)

const (
	ceremonyTypeGet = "webauthn.get"

	// authenticator data layout
	flagsOffset     = 32
	counterOffset   = 33
	minAuthDataLen  = 37
	flagUserPresent = 0x01
	flagBackupState = 0x10
)

// CredentialStore is the persistence needed by the assertion ceremony. The
// CouchDB-backed implementation lives in services.
type CredentialStore interface {
	GetByCredentialID(ctx context.Context, credentialID string) (*types.PasskeyCredentialDB, error)
	UpdateCounter(ctx context.Context, credentialID string, counter uint32, lastUsedAt int64) error
}

// Verifier runs the passkey authentication ceremony against a configured
// relying party.
type Verifier struct {
	challenges *ChallengeStore
	creds      CredentialStore
	origin     string
	rpIDHash   [sha256.Size]byte
	now        func() time.Time
}

func NewVerifier(challenges *ChallengeStore, creds CredentialStore, rpID, origin string) *Verifier {
	return &Verifier{
		challenges: challenges,
		creds:      creds,
		origin:     origin,
		rpIDHash:   sha256.Sum256([]byte(rpID)),
		now:        time.Now,
	}
}

// clientData is the parsed clientDataJSON payload.
type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"` // base64url of the issued value
	Origin    string `json:"origin"`
}

// VerifyAssertion runs every gate of the ceremony in order. Any failure aborts
// with its sentinel error and leaves no state behind: the stored counter only
// advances after the signature has checked out.
//
// The returned user id comes from the credential row, never from the
// caller-supplied user handle; a forged handle cannot redirect an otherwise
// valid assertion to another account.
func (v *Verifier) VerifyAssertion(ctx context.Context, in *types.AssertionInput) (*types.AssertionResult, error) {
	cred, err := v.creds.GetByCredentialID(ctx, in.CredentialID)
	if err != nil {
		if err == types.ErrNotFound {
			return nil, types.ErrUnknownCredential
		}
		return nil, err
	}

	challenge, err := v.challenges.Consume(in.ChallengeID)
	if err != nil {
		return nil, err
	}

	clientDataRaw, err := base64.RawURLEncoding.DecodeString(in.ClientDataJSON)
	if err != nil {
		return nil, types.ErrBadRequest
	}
	authData, err := base64.RawURLEncoding.DecodeString(in.AuthenticatorData)
	if err != nil {
		return nil, types.ErrBadRequest
	}
	signature, err := base64.RawURLEncoding.DecodeString(in.Signature)
	if err != nil {
		return nil, types.ErrBadRequest
	}

	var cd clientData
	if err := json.Unmarshal(clientDataRaw, &cd); err != nil {
		return nil, types.ErrBadRequest
	}
	if cd.Type != ceremonyTypeGet {
		return nil, types.ErrChallengeMismatch
	}
	presented, err := base64.RawURLEncoding.DecodeString(cd.Challenge)
	if err != nil {
		return nil, types.ErrChallengeMismatch
	}
	if subtle.ConstantTimeCompare(presented, challenge) != 1 {
		return nil, types.ErrChallengeMismatch
	}

	if cd.Origin != v.origin {
		return nil, types.ErrOriginMismatch
	}

	if len(authData) < minAuthDataLen {
		return nil, types.ErrBadRequest
	}
	if subtle.ConstantTimeCompare(authData[:sha256.Size], v.rpIDHash[:]) != 1 {
		return nil, types.ErrRelyingPartyMismatch
	}
	if authData[flagsOffset]&flagUserPresent == 0 {
		return nil, types.ErrUserPresenceMissing
	}

	counter := binary.BigEndian.Uint32(authData[counterOffset : counterOffset+4])
	// A stored counter of 0 means the authenticator never reports one
	// (cloud-synced passkeys); the replay check is skipped for those.
	if cred.Counter > 0 && counter <= cred.Counter {
		return nil, types.ErrCounterReplay
	}

	clientDataHash := sha256.Sum256(clientDataRaw)
	signed := make([]byte, 0, len(authData)+sha256.Size)
	signed = append(signed, authData...)
	signed = append(signed, clientDataHash[:]...)

	pub, err := cose.DecodePublicKey(cred.PublicKey)
	if err != nil {
		return nil, err
	}
	ok, err := cose.Verify(pub, signed, signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.ErrSignatureInvalid
	}

	if err := v.creds.UpdateCounter(ctx, cred.CredentialID, counter, v.now().UTC().UnixMilli()); err != nil {
		return nil, err
	}

	return &types.AssertionResult{
		UserID:       cred.UserID,
		CredentialID: cred.CredentialID,
		NewCounter:   counter,
	}, nil
}

// ParseAuthenticatorFlags extracts device hints from authenticator data for
// credential registration.
func ParseAuthenticatorFlags(authData []byte) (backedUp bool, ok bool) {
	if len(authData) < minAuthDataLen {
		return false, false
	}
	return authData[flagsOffset]&flagBackupState != 0, true
}
