package types

// UserDB is an account on the custody server. The plain email never leaves the
// request that carried it; only the scrypt hash is persisted for lookups.
type UserDB struct {
	BaseDocument   `json:",inline"`
	UserID         string     `json:"userId"`
	EncryptedEmail string     `json:"encryptedEmail"` // base64 scrypt hash of the email
	Guardians      []Guardian `json:"guardians,omitempty"`
	// Recovery threshold M; must be <= len(Guardians)
	GuardianThreshold int   `json:"guardianThreshold,omitempty"`
	Created           int64 `json:"created"`
	Modified          int64 `json:"modified,omitempty"`
}
