// config.go - Configuration management for the shielded pool client
package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"shieldedamm/internal/felt"
	"shieldedamm/internal/logging"
)

// Collaborator backends.
const (
	BackendDevnet = "devnet"
	BackendRemote = "remote"
)

// Ledger storage backends.
const (
	LedgerJSON    = "json"
	LedgerLevelDB = "leveldb"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ZYLITH_"

// Config represents the application configuration
type Config struct {
	// Collaborators
	Backend   string `json:"backend"`
	RPCURL    string `json:"rpc_url"`
	SignerURL string `json:"signer_url"`
	ASPURL    string `json:"asp_url"`

	// Contracts
	Account string `json:"account"`
	Pool    string `json:"pool"`
	Token0  string `json:"token0"`
	Token1  string `json:"token1"`

	// Storage
	LedgerPath    string `json:"ledger_path"`
	LedgerBackend string `json:"ledger_backend"`

	// Logging
	LogLevel     string `json:"log_level"`
	LogFile      string `json:"log_file"`
	LogJSON      bool   `json:"log_json"`
	EnableAudit  bool   `json:"enable_audit"`
	AuditLogPath string `json:"audit_log_path"`

	// Timeouts
	SwapProofTimeoutSeconds int `json:"swap_proof_timeout_seconds"`
	ProofTimeoutSeconds     int `json:"proof_timeout_seconds"`
	ConfirmTimeoutSeconds   int `json:"confirm_timeout_seconds"`

	// ASP rate limiting
	ASPRequestsPerSecond int `json:"asp_requests_per_second"`
	ASPBurst             int `json:"asp_burst"`

	// Devnet
	DevnetFunds string `json:"devnet_funds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend:                 BackendDevnet,
		RPCURL:                  "http://localhost:5050/rpc",
		SignerURL:               "http://localhost:5051",
		ASPURL:                  "http://localhost:3000",
		Account:                 "0xa11ce",
		Pool:                    "0x9001",
		Token0:                  "0x7001",
		Token1:                  "0x7002",
		LedgerPath:              "ledger.json",
		LedgerBackend:           LedgerJSON,
		LogLevel:                "info",
		LogFile:                 "",
		EnableAudit:             true,
		AuditLogPath:            "audit.log",
		SwapProofTimeoutSeconds: 600,
		ProofTimeoutSeconds:     120,
		ConfirmTimeoutSeconds:   300,
		ASPRequestsPerSecond:    10,
		ASPBurst:                20,
		DevnetFunds:             "1000000000",
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		config := DefaultConfig()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// LoadEnv reads .env files into the process environment. Missing files are
// skipped and variables already set are not overwritten.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from ZYLITH_* variables using lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"BACKEND":        &c.Backend,
		"RPC_URL":        &c.RPCURL,
		"SIGNER_URL":     &c.SignerURL,
		"ASP_URL":        &c.ASPURL,
		"ACCOUNT":        &c.Account,
		"POOL":           &c.Pool,
		"TOKEN0":         &c.Token0,
		"TOKEN1":         &c.Token1,
		"LEDGER_PATH":    &c.LedgerPath,
		"LEDGER_BACKEND": &c.LedgerBackend,
		"LOG_LEVEL":      &c.LogLevel,
		"LOG_FILE":       &c.LogFile,
		"AUDIT_LOG_PATH": &c.AuditLogPath,
		"DEVNET_FUNDS":   &c.DevnetFunds,
	}
	for key, dst := range str {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SWAP_PROOF_TIMEOUT_SECONDS": &c.SwapProofTimeoutSeconds,
		"PROOF_TIMEOUT_SECONDS":      &c.ProofTimeoutSeconds,
		"CONFIRM_TIMEOUT_SECONDS":    &c.ConfirmTimeoutSeconds,
		"ASP_REQUESTS_PER_SECOND":    &c.ASPRequestsPerSecond,
		"ASP_BURST":                  &c.ASPBurst,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"LOG_JSON":     &c.LogJSON,
		"ENABLE_AUDIT": &c.EnableAudit,
	}
	for key, dst := range bools {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDevnet:
	case BackendRemote:
		if c.RPCURL == "" || c.ASPURL == "" || c.SignerURL == "" {
			return fmt.Errorf("remote backend needs rpc_url, signer_url and asp_url")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.LedgerBackend {
	case LedgerJSON, LedgerLevelDB:
	default:
		return fmt.Errorf("unknown ledger_backend %q", c.LedgerBackend)
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger_path must be set")
	}
	for name, v := range map[string]string{"account": c.Account, "pool": c.Pool, "token0": c.Token0, "token1": c.Token1} {
		if _, err := felt.Parse(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.SwapProofTimeoutSeconds <= 0 || c.ProofTimeoutSeconds <= 0 || c.ConfirmTimeoutSeconds <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.ASPRequestsPerSecond <= 0 || c.ASPBurst <= 0 {
		return fmt.Errorf("asp rate limit must be positive")
	}
	if _, ok := new(big.Int).SetString(c.DevnetFunds, 10); !ok {
		return fmt.Errorf("devnet_funds: invalid number %q", c.DevnetFunds)
	}
	return nil
}

// Addresses are the parsed contract addresses.
type Addresses struct {
	Account, Pool, Token0, Token1 *big.Int
}

// Addresses parses the contract addresses. Call Validate first.
func (c *Config) Addresses() Addresses {
	return Addresses{
		Account: felt.MustParse(c.Account),
		Pool:    felt.MustParse(c.Pool),
		Token0:  felt.MustParse(c.Token0),
		Token1:  felt.MustParse(c.Token1),
	}
}

// SwapProofTimeout is the proof deadline for swaps.
func (c *Config) SwapProofTimeout() time.Duration {
	return time.Duration(c.SwapProofTimeoutSeconds) * time.Second
}

// ProofTimeout is the proof deadline for every other operation.
func (c *Config) ProofTimeout() time.Duration {
	return time.Duration(c.ProofTimeoutSeconds) * time.Second
}

// ConfirmTimeout bounds submission plus confirmation.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

// Funds is the devnet starting balance per token.
func (c *Config) Funds() *big.Int {
	v, _ := new(big.Int).SetString(c.DevnetFunds, 10)
	return v
}

// LogOptions maps the logging fields onto logging.Options.
func (c *Config) LogOptions() logging.Options {
	opts := logging.Options{
		Level:   c.LogLevel,
		File:    c.LogFile,
		Console: true,
		JSON:    c.LogJSON,
	}
	if c.EnableAudit {
		opts.AuditFile = c.AuditLogPath
	}
	return opts
}
