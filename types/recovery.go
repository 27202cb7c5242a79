package types

// Recovery challenge states. Completed and expired are terminal.
const (
	RecoveryStatusPending   = "pending"
	RecoveryStatusCompleted = "completed"
	RecoveryStatusExpired   = "expired"
)

// Guardian kinds.
const (
	GuardianTypeEmail        = "email"
	GuardianTypeDeviceFactor = "deviceFactor"
)

// Delivery outcome of guardian notifications recorded at recovery start.
const (
	RecoveryDeliveryEmail  = "email"
	RecoveryDeliveryMixed  = "mixed"
	RecoveryDeliveryManual = "manual"
)

// Guardian is a pre-registered approver on the user account.
type Guardian struct {
	GuardianID string `json:"guardianId"`
	Type       string `json:"type"` // email | deviceFactor
	Email      string `json:"email,omitempty"`
	// TOTP secret (base32) for deviceFactor guardians
	TotpSecret string `json:"totpSecret,omitempty"`
	// scrypt hashes of one-time backup codes
	BackupCodeHashes []string `json:"backupCodeHashes,omitempty"`
}

// GuardianApprovalDB is a single guardian's approval token for one recovery
// challenge. ApprovedAt == 0 means not yet approved.
type GuardianApprovalDB struct {
	BaseDocument `json:",inline"`
	Token        string `json:"token"` // unguessable, doubles as document id
	ChallengeID  string `json:"challengeId"`
	GuardianID   string `json:"guardianId"`
	GuardianType string `json:"guardianType"`
	ExpiresAt    int64  `json:"expiresAt"`
	ApprovedAt   int64  `json:"approvedAt,omitempty"`
}

// RecoveryChallengeDB tracks one recovery attempt. The approval count is always
// recomputed from the approval records, never incremented in place.
type RecoveryChallengeDB struct {
	BaseDocument `json:",inline"`
	ChallengeID  string `json:"challengeId"`
	UserID       string `json:"userId"`
	ContextToken string `json:"contextToken"` // signed JWT, single use
	// secret held by whoever started the recovery; presenting it is the only
	// way to collect the context token
	InitiatorToken string   `json:"initiatorToken"`
	Threshold      int      `json:"threshold"`
	Tokens         []string `json:"tokens"` // guardian approval token ids
	Delivery       string   `json:"delivery"`
	Status         string   `json:"status"`
	Created        int64    `json:"created"`
	ExpiresAt      int64    `json:"expiresAt"`
}

// RecoveryStartInput identifies the account to recover.
type RecoveryStartInput struct {
	Identifier string `json:"identifier" validate:"required,email"`
}

// RecoveryStartResult is returned to the recovering client. Approval tokens are
// delivered to guardians, not to the caller; the caller only learns ids. The
// recovery token identifies the initiator on later status polls and must be
// presented to collect the context token.
type RecoveryStartResult struct {
	ChallengeID   string   `json:"challengeId"`
	RecoveryToken string   `json:"recoveryToken"`
	Guardians     []string `json:"guardians"` // guardian ids notified
	Threshold     int      `json:"threshold"`
	Delivery      string   `json:"delivery"`
	ExpiresAt     int64    `json:"expiresAt"`
}

// RecoveryApproveInput carries one guardian approval. Proof is empty for email
// guardians (token possession suffices) and a TOTP or backup code for
// deviceFactor guardians.
type RecoveryApproveInput struct {
	Token string `json:"token" validate:"required"`
	Proof string `json:"proof,omitempty"`
}

// RecoveryStatusResult is the idempotent poll response. Guardians approving
// get only the tally; the challenge id and the context token belong to the
// recovery initiator.
type RecoveryStatusResult struct {
	ChallengeID  string `json:"challengeId,omitempty"`
	Status       string `json:"status"`
	Approvals    int    `json:"approvals"`
	Threshold    int    `json:"threshold"`
	ExpiresAt    int64  `json:"expiresAt"`
	ContextToken string `json:"contextToken,omitempty"` // initiator-only, once completed
}

// RecoveryFinalizeInput installs a new credential from a completed recovery.
type RecoveryFinalizeInput struct {
	ContextToken string                 `json:"contextToken" validate:"required"`
	Credential   CredentialRegistration `json:"credential" validate:"required"`
}
