package types

// ServerKeys is the on-disk format of the recovery token signing keypair.
type ServerKeys struct {
	Type       string `json:"type"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
	Created    int64  `json:"created"`
}

// KeyRegistrationInput carries a client-generated homomorphic evaluation key
// destined for the internal key registry.
type KeyRegistrationInput struct {
	ServerKey string `json:"serverKey" validate:"required"`
}

// KeyRegistrationResult is the registry's handle for an uploaded key.
type KeyRegistrationResult struct {
	KeyID string `json:"keyId"`
}
