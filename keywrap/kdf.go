package keywrap

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/zentity-id/go-zentity-server/types"
)

// Credential kinds able to derive a key-encryption key. Each kind carries its
// own material shape and a distinct derivation domain, so key material leaked
// or reused in one protocol can never stand in for another.
type CredentialKind int

const (
	KindPasskey CredentialKind = iota // authenticator PRF extension output
	KindOpaque                        // PAKE export key
	KindWallet                        // deterministic wallet signature
)

const (
	passkeyPRFSize   = 32
	opaqueExportSize = 64
	walletSigSize    = 65
	kekSize          = 32
)

var kdfInfo = map[CredentialKind]string{
	KindPasskey: "zentity/kek/passkey/v1",
	KindOpaque:  "zentity/kek/opaque/v1",
	KindWallet:  "zentity/kek/wallet/v1",
}

// KEK is a derived key-encryption key. The raw key bytes are consumed by the
// AEAD construction at creation and never exposed, so a KEK cannot be
// exported or persisted; it is recomputed on demand from credential material.
type KEK struct {
	aead cipher.AEAD
}

// DeriveKEK derives the 256-bit KEK for one credential of the given kind.
// The salt is the owning user id; the info string is the kind's domain tag.
func DeriveKEK(kind CredentialKind, material []byte, userID string) (*KEK, error) {
	want, ok := map[CredentialKind]int{
		KindPasskey: passkeyPRFSize,
		KindOpaque:  opaqueExportSize,
		KindWallet:  walletSigSize,
	}[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown credential kind %d", types.ErrBadRequest, kind)
	}
	if len(material) != want {
		return nil, fmt.Errorf("%w: kind %d wants %d bytes, got %d", types.ErrInvalidLength, kind, want, len(material))
	}

	key := make([]byte, kekSize)
	r := hkdf.New(sha256.New, material, []byte(userID), []byte(kdfInfo[kind]))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &KEK{aead: aead}, nil
}

// SignFunc produces a wallet signature over a message.
type SignFunc func(message []byte) ([]byte, error)

// WalletEnrollmentMessage is the structured message a wallet signs to derive
// its KEK. Fixed domain and field set, no timestamps: re-signing must always
// reproduce the same bytes.
func WalletEnrollmentMessage(userID string) []byte {
	return []byte("zentity.id wants you to derive an encryption key\n\nPurpose: secret custody\nUser: " + userID + "\nVersion: 1")
}

// DeterministicWalletSignature obtains the wallet signature used as KEK
// material, signing the enrollment message twice and requiring byte-identical
// results. A signer that randomizes (RFC 6979-less ECDSA) would silently
// derive a different KEK on every use, so enrollment aborts instead.
func DeterministicWalletSignature(userID string, sign SignFunc) ([]byte, error) {
	msg := WalletEnrollmentMessage(userID)
	first, err := sign(msg)
	if err != nil {
		return nil, err
	}
	second, err := sign(msg)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, second) {
		return nil, fmt.Errorf("%w: two signatures over the enrollment message differ", types.ErrNonDeterministicSigner)
	}
	if len(first) != walletSigSize {
		return nil, fmt.Errorf("%w: wallet signature must be %d bytes, got %d", types.ErrInvalidLength, walletSigSize, len(first))
	}
	return first, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
