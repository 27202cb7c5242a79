package types

import "errors"

var (
	// ErrInvalidEmail is returned when the email is invalid
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrInternal (for unhandled exceptions)
	ErrInternal = errors.New("internal error")

	// ErrConflict is returned when the resource conflicts (e.g. update of old revision)
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("not found")

	// ErrBadRequest is returned on malformed input
	ErrBadRequest = errors.New("bad request")

	// ErrUserExists is returned when registering an already taken identifier
	ErrUserExists = errors.New("user already exists")
)

// Assertion ceremony errors. Every gate of the passkey verification has its own
// sentinel so callers can map failures without string matching.
var (
	ErrUnknownCredential    = errors.New("unknown credential")
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrChallengeExpired     = errors.New("challenge expired")
	ErrChallengeMismatch    = errors.New("challenge mismatch")
	ErrOriginMismatch       = errors.New("origin mismatch")
	ErrRelyingPartyMismatch = errors.New("relying party mismatch")
	ErrUserPresenceMissing  = errors.New("user presence flag missing")
	ErrCounterReplay        = errors.New("authenticator counter replayed")
	ErrSignatureInvalid     = errors.New("signature invalid")
)

// Key custody errors.
var (
	ErrDecode                 = errors.New("malformed key or signature bytes")
	ErrInvalidLength          = errors.New("credential material has invalid length")
	ErrNonDeterministicSigner = errors.New("wallet signer is not deterministic")
	ErrDecryptionFailed       = errors.New("decryption failed")
)

// Recovery errors.
var (
	ErrRecoveryExpired = errors.New("recovery challenge expired")
	ErrThresholdNotMet = errors.New("guardian approval threshold not met")
)
