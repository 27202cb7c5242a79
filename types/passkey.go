package types

// PasskeyCredential is the stored public-key credential of a user. The public
// key stays in its raw COSE encoding and is decoded on every verification.
type PasskeyCredentialDB struct {
	BaseDocument `json:",inline"`
	CredentialID string   `json:"credentialId"` // base64url raw credential id
	UserID       string   `json:"userId"`
	PublicKey    []byte   `json:"publicKey"` // COSE key bytes
	Counter      uint32   `json:"counter"`
	DeviceType   string   `json:"deviceType"` // "platform" | "cross-platform"
	BackedUp     bool     `json:"backedUp"`
	Transports   []string `json:"transports,omitempty"`
	Name         string   `json:"name,omitempty"`
	Created      int64    `json:"created"`
	LastUsedAt   int64    `json:"lastUsedAt,omitempty"`
}

// AssertionInput carries one authentication ceremony, all binary fields base64url
type AssertionInput struct {
	ChallengeID       string `json:"challengeId" validate:"required"`
	CredentialID      string `json:"credentialId" validate:"required"`
	ClientDataJSON    string `json:"clientDataJSON" validate:"required"`
	AuthenticatorData string `json:"authenticatorData" validate:"required"`
	Signature         string `json:"signature" validate:"required"`
	UserHandle        string `json:"userHandle,omitempty"`
}

// AssertionResult is returned after a successful ceremony. UserID comes from
// the stored credential row, never from the caller-supplied user handle.
type AssertionResult struct {
	UserID       string `json:"userId"`
	CredentialID string `json:"credentialId"`
	NewCounter   uint32 `json:"counter"`
}

// CredentialRegistration installs a new passkey for a user.
type CredentialRegistration struct {
	UserID       string   `json:"userId" validate:"required"`
	CredentialID string   `json:"credentialId" validate:"required"`
	PublicKey    string   `json:"publicKey" validate:"required"` // base64 COSE key bytes
	DeviceType   string   `json:"deviceType,omitempty"`
	BackedUp     bool     `json:"backedUp,omitempty"`
	Transports   []string `json:"transports,omitempty"`
	Name         string   `json:"name,omitempty"`
}
