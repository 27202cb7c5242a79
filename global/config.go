package global

import (
	"crypto/ed25519"
	"os"

	"github.com/go-redis/redis_rate/v10"
	"gopkg.in/yaml.v3"
)

// Conf global config
var Conf Config

// Recovery context token signing keypair (loaded from serverKeysPath)
var PublicKey ed25519.PublicKey
var PrivateKey ed25519.PrivateKey
var ServerKeysCreated int64

// Global rate limiter
var RateLimiter *redis_rate.Limiter

type Config struct {
	Scheme  string `yaml:"scheme"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Version string `yaml:"version"`
	Mode    string `yaml:"mode"` // debug | release

	CouchDB    CouchDBConfig    `yaml:"couchdb"`
	Redis      RedisConfig      `yaml:"redis"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Queue      QueueConfig      `yaml:"queue"`
	Passkey    PasskeyConfig    `yaml:"passkey"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	KeyReg     KeyRegConfig     `yaml:"keyreg"`

	ServerKeysPath string `yaml:"serverKeysPath"`
	EmailSaltHex   string `yaml:"emailSaltHex"`
}

type CouchDBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Scheme   string `yaml:"scheme"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type PrometheusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type QueueConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// PasskeyConfig carries the relying party identity every assertion is checked
// against.
type PasskeyConfig struct {
	RelyingPartyID string `yaml:"rpId"`     // e.g. "zentity.id"
	Origin         string `yaml:"rpOrigin"` // e.g. "https://app.zentity.id"
}

type RecoveryConfig struct {
	// recovery challenge TTL in minutes
	TTLMinutes int `yaml:"ttlMinutes"`
	// base URL embedded in guardian approval links
	ApprovalBaseURL string `yaml:"approvalBaseUrl"`
	// HTTP email provider webhook for guardian notifications
	EmailWebhookURL string `yaml:"emailWebhookUrl"`
	EmailWebhookKey string `yaml:"emailWebhookKey"`
}

// KeyRegConfig points at the external homomorphic-encryption service accepting
// key registrations. Treated as an opaque collaborator.
type KeyRegConfig struct {
	BaseURL       string `yaml:"baseUrl"`
	InternalToken string `yaml:"internalToken"`
}

// LoadConfig reads the yaml configuration file into Conf.
func LoadConfig(path string, conf *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, conf)
}
