package keywrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/zentity-id/go-zentity-server/types"
)

const (
	AlgAESGCM = "AES-GCM"

	dekSize   = 32
	nonceSize = 12

	secretContextTag = "zentity/secret/v1"
	wrapContextTag   = "zentity/wrap/v1"
)

// Envelope is the serialized form of one AEAD operation.
type Envelope struct {
	Alg        string `json:"alg" cbor:"alg"`
	IV         []byte `json:"iv" cbor:"iv"`
	Ciphertext []byte `json:"ciphertext" cbor:"ciphertext"`
}

// envelopeJSON is the verbose text encoding with base64 fields.
type envelopeJSON struct {
	Alg        string `json:"alg"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// GenerateDEK returns a fresh random 256-bit data-encryption key. The DEK is
// only ever held in process memory; it is persisted exclusively in wrapped
// form.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, dekSize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, err
	}
	return dek, nil
}

func secretAAD(secretID, secretType string) []byte {
	return []byte(strings.Join([]string{secretContextTag, secretID, secretType}, "|"))
}

func wrapAAD(secretID, credentialID, userID string) []byte {
	return []byte(strings.Join([]string{wrapContextTag, secretID, credentialID, userID}, "|"))
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seal(aead cipher.AEAD, plaintext, aad []byte) (*Envelope, error) {
	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, iv, plaintext, aad)
	return &Envelope{Alg: AlgAESGCM, IV: iv, Ciphertext: ct}, nil
}

func open(aead cipher.AEAD, env *Envelope, aad []byte) ([]byte, error) {
	if env.Alg != AlgAESGCM {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", types.ErrDecode, env.Alg)
	}
	if len(env.IV) != nonceSize {
		return nil, fmt.Errorf("%w: bad nonce length %d", types.ErrDecode, len(env.IV))
	}
	pt, err := aead.Open(nil, env.IV, env.Ciphertext, aad)
	if err != nil {
		// tag mismatch: tampered blob, wrong key or wrong binding context
		return nil, types.ErrDecryptionFailed
	}
	return pt, nil
}

// Encode serializes an envelope in the requested wire format.
func (e *Envelope) Encode(format types.EnvelopeFormat) ([]byte, error) {
	switch format {
	case types.FormatCompact:
		return cbor.Marshal(e)
	case types.FormatVerbose:
		return json.Marshal(envelopeJSON{
			Alg:        e.Alg,
			IV:         base64.StdEncoding.EncodeToString(e.IV),
			Ciphertext: base64.StdEncoding.EncodeToString(e.Ciphertext),
		})
	default:
		return nil, fmt.Errorf("%w: unknown envelope format %q", types.ErrBadRequest, format)
	}
}

// DecodeEnvelope parses either wire format back into an envelope.
func DecodeEnvelope(blob []byte, format types.EnvelopeFormat) (*Envelope, error) {
	switch format {
	case types.FormatCompact:
		var e Envelope
		if err := cbor.Unmarshal(blob, &e); err != nil {
			return nil, fmt.Errorf("%w: %s", types.ErrDecode, err.Error())
		}
		return &e, nil
	case types.FormatVerbose:
		var j envelopeJSON
		if err := json.Unmarshal(blob, &j); err != nil {
			return nil, fmt.Errorf("%w: %s", types.ErrDecode, err.Error())
		}
		iv, err := base64.StdEncoding.DecodeString(j.IV)
		if err != nil {
			return nil, fmt.Errorf("%w: bad iv encoding", types.ErrDecode)
		}
		ct, err := base64.StdEncoding.DecodeString(j.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("%w: bad ciphertext encoding", types.ErrDecode)
		}
		return &Envelope{Alg: j.Alg, IV: iv, Ciphertext: ct}, nil
	default:
		return nil, fmt.Errorf("%w: unknown envelope format %q", types.ErrBadRequest, format)
	}
}

// Encrypt seals a secret payload under its DEK, binding the ciphertext to the
// secret's identity through the AAD.
func Encrypt(secretID, secretType string, plaintext, dek []byte, format types.EnvelopeFormat) ([]byte, error) {
	if len(dek) != dekSize {
		return nil, fmt.Errorf("%w: DEK must be %d bytes", types.ErrInvalidLength, dekSize)
	}
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}
	env, err := seal(aead, plaintext, secretAAD(secretID, secretType))
	if err != nil {
		return nil, err
	}
	return env.Encode(format)
}

// Decrypt reverses Encrypt. A blob encrypted for a different secret id or
// type, or touched in transit, fails authentication.
func Decrypt(secretID, secretType string, blob, dek []byte, format types.EnvelopeFormat) ([]byte, error) {
	if len(dek) != dekSize {
		return nil, fmt.Errorf("%w: DEK must be %d bytes", types.ErrInvalidLength, dekSize)
	}
	env, err := DecodeEnvelope(blob, format)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}
	return open(aead, env, secretAAD(secretID, secretType))
}

// Wrap encrypts a DEK under a credential's KEK. The AAD ties the wrapper to
// the (secret, credential, user) triple: a wrapper made for credential A can
// never be unwrapped under credential B's KEK; the tag check fails instead of
// yielding a wrong key.
func Wrap(secretID, credentialID, userID string, dek []byte, kek *KEK) ([]byte, error) {
	if len(dek) != dekSize {
		return nil, fmt.Errorf("%w: DEK must be %d bytes", types.ErrInvalidLength, dekSize)
	}
	env, err := seal(kek.aead, dek, wrapAAD(secretID, credentialID, userID))
	if err != nil {
		return nil, err
	}
	return env.Encode(types.FormatCompact)
}

// Unwrap recovers the DEK from a wrapper created by Wrap.
func Unwrap(secretID, credentialID, userID string, wrapped []byte, kek *KEK) ([]byte, error) {
	env, err := DecodeEnvelope(wrapped, types.FormatCompact)
	if err != nil {
		return nil, err
	}
	return open(kek.aead, env, wrapAAD(secretID, credentialID, userID))
}
