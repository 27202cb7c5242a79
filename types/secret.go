package types

// EnvelopeFormat selects the wire encoding of an encrypted blob.
type EnvelopeFormat string

const (
	// FormatCompact is the CBOR encoding of {alg, iv, ciphertext}
	FormatCompact EnvelopeFormat = "compact"
	// FormatVerbose is the JSON encoding with base64 fields
	FormatVerbose EnvelopeFormat = "verbose"
)

// SecretEnvelopeDB stores a payload encrypted under its DEK. The server never
// sees the DEK unwrapped; it only persists ciphertext.
type SecretEnvelopeDB struct {
	BaseDocument  `json:",inline"`
	SecretID      string         `json:"secretId"`
	UserID        string         `json:"userId"`
	SecretType    string         `json:"secretType"` // e.g. "verification_profile", "fhe_client_key"
	EncryptedBlob []byte         `json:"encryptedBlob"`
	Format        EnvelopeFormat `json:"format"`
	Created       int64          `json:"created"`
	Modified      int64          `json:"modified,omitempty"`
}

// WrappedDekDB is one DEK copy wrapped under one credential's KEK. A secret has
// one of these per enrolled credential, all wrapping the same DEK.
type WrappedDekDB struct {
	BaseDocument `json:",inline"`
	SecretID     string `json:"secretId"`
	CredentialID string `json:"credentialId"`
	UserID       string `json:"userId"`
	WrappedDek   []byte `json:"wrappedDek"` // compact envelope encoding
	Created      int64  `json:"created"`
}

// StoreSecretInput is the REST payload for persisting an envelope together with
// its wrapped DEK copies.
type StoreSecretInput struct {
	SecretID      string             `json:"secretId" validate:"required"`
	UserID        string             `json:"userId" validate:"required"`
	SecretType    string             `json:"secretType" validate:"required"`
	EncryptedBlob string             `json:"encryptedBlob" validate:"required"` // base64
	Format        EnvelopeFormat     `json:"format" validate:"required,oneof=compact verbose"`
	WrappedDeks   []WrappedDekUpload `json:"wrappedDeks" validate:"required,min=1,dive"`
}

type WrappedDekUpload struct {
	CredentialID string `json:"credentialId" validate:"required"`
	WrappedDek   string `json:"wrappedDek" validate:"required"` // base64
}
