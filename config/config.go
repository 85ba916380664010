package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// StoreBackendKV keeps deliveries, reviews and ratings in tm-db.
	StoreBackendKV = "kv"
	// StoreBackendPsql keeps them in PostgreSQL.
	StoreBackendPsql = "psql"

	// CodePolicyReusable lets one delivery code authorize any number of
	// attempts for its (user, product) pair.
	CodePolicyReusable = "reusable"
	// CodePolicySingleUse spends a delivery code on the first review it
	// authorizes.
	CodePolicySingleUse = "single-use"

	ContentStoreLocal = "local"
	ContentStoreIPFS  = "ipfs"

	// LedgerModeEmbedded runs the review registry contract in-process.
	LedgerModeEmbedded = "embedded"
	// LedgerModeRemote talks to an `attestd ledger start` node over RPC.
	LedgerModeRemote = "remote"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultAttestDir = ".attestd"
	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName = "config.toml"
	defaultSignerKeyName  = "signer_key.json"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultSignerKeyPath  = filepath.Join(defaultConfigDir, defaultSignerKeyName)
)

// Config defines the top level configuration of an attestd process.
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	RPC             *RPCConfig             `mapstructure:"rpc"`
	Store           *StoreConfig           `mapstructure:"store"`
	Delivery        *DeliveryConfig        `mapstructure:"delivery"`
	Attestation     *AttestationConfig     `mapstructure:"attestation"`
	ContentStore    *ContentStoreConfig    `mapstructure:"content-store"`
	Ledger          *LedgerConfig          `mapstructure:"ledger"`
	LedgerNode      *LedgerNodeConfig      `mapstructure:"ledger-node"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		RPC:             DefaultRPCConfig(),
		Store:           DefaultStoreConfig(),
		Delivery:        DefaultDeliveryConfig(),
		Attestation:     DefaultAttestationConfig(),
		ContentStore:    DefaultContentStoreConfig(),
		Ledger:          DefaultLedgerConfig(),
		LedgerNode:      DefaultLedgerNodeConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		RPC:             TestRPCConfig(),
		Store:           DefaultStoreConfig(),
		Delivery:        DefaultDeliveryConfig(),
		Attestation:     TestAttestationConfig(),
		ContentStore:    DefaultContentStoreConfig(),
		Ledger:          DefaultLedgerConfig(),
		LedgerNode:      TestLedgerNodeConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.RPC.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [rpc] section: %w", err)
	}
	if err := cfg.Store.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [store] section: %w", err)
	}
	if err := cfg.Delivery.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [delivery] section: %w", err)
	}
	if err := cfg.Attestation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [attestation] section: %w", err)
	}
	if err := cfg.ContentStore.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [content-store] section: %w", err)
	}
	if err := cfg.Ledger.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [ledger] section: %w", err)
	}
	if err := cfg.LedgerNode.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [ledger-node] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration.
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb | memdb
	DBBackend string `mapstructure:"db-backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`

	// Path to the JSON file containing the ed25519 key that signs every
	// ledger transaction.
	SignerKey string `mapstructure:"signer-key-file"`
}

// DefaultBaseConfig returns a default base configuration.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		SignerKey: defaultSignerKeyPath,
		LogLevel:  "info",
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing.
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	return cfg
}

// SignerKeyFile returns the full path to the signer key file.
func (cfg BaseConfig) SignerKeyFile() string {
	return rootify(cfg.SignerKey, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain' or 'json')")
	}
	if cfg.DBBackend == "" {
		return errors.New("db-backend can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// RPCConfig

// RPCConfig defines the configuration options for the review RPC server.
type RPCConfig struct {
	RootDir string `mapstructure:"home"`

	// TCP or UNIX socket address for the RPC server to listen on
	ListenAddress string `mapstructure:"laddr"`

	// A list of origins a cross-domain request can be executed from.
	// If the special '*' value is present in the list, all origins will be allowed.
	// An origin may contain a wildcard (*) to replace 0 or more characters (i.e.: http://*.domain.com).
	// Only one wildcard can be used per origin.
	CORSAllowedOrigins []string `mapstructure:"cors-allowed-origins"`

	// A list of methods the client is allowed to use with cross-domain requests.
	CORSAllowedMethods []string `mapstructure:"cors-allowed-methods"`

	// A list of non simple headers the client is allowed to use with cross-domain requests.
	CORSAllowedHeaders []string `mapstructure:"cors-allowed-headers"`

	// Activate operator commands: mark_delivered, record_order,
	// delete_review, all_reviews, retry_attestation, recompute_ratings.
	Unsafe bool `mapstructure:"unsafe"`

	// Maximum number of simultaneous connections.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max-open-connections"`

	// Maximum size of request body, in bytes. Images travel inside the
	// body, so this bounds their size too.
	MaxBodyBytes int64 `mapstructure:"max-body-bytes"`

	// Maximum size of request header, in bytes
	MaxHeaderBytes int `mapstructure:"max-header-bytes"`

	// How long the server waits for a request body and how long a
	// response may take to write.
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
}

// DefaultRPCConfig returns a default configuration for the RPC server
func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		ListenAddress:      "tcp://127.0.0.1:8657",
		CORSAllowedOrigins: []string{},
		CORSAllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		CORSAllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "X-Server-Time"},

		Unsafe:             false,
		MaxOpenConnections: 900,

		MaxBodyBytes:   int64(8 << 20), // 8MB
		MaxHeaderBytes: 1 << 20,        // same as the net/http default

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// TestRPCConfig returns a configuration for testing the RPC server
func TestRPCConfig() *RPCConfig {
	cfg := DefaultRPCConfig()
	cfg.ListenAddress = "tcp://127.0.0.1:0"
	cfg.Unsafe = true
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *RPCConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max-open-connections can't be negative")
	}
	if cfg.MaxBodyBytes < 0 {
		return errors.New("max-body-bytes can't be negative")
	}
	if cfg.MaxHeaderBytes < 0 {
		return errors.New("max-header-bytes can't be negative")
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 {
		return errors.New("timeouts can't be negative")
	}
	return nil
}

// IsCorsEnabled returns true if cross-origin resource sharing is enabled.
func (cfg *RPCConfig) IsCorsEnabled() bool {
	return len(cfg.CORSAllowedOrigins) != 0
}

//-----------------------------------------------------------------------------
// StoreConfig

// StoreConfig selects the durable store for deliveries, reviews and rating
// summaries. Both backends enforce the uniqueness rules the review protocol
// depends on.
type StoreConfig struct {
	// "kv" (tm-db, in the db-dir) or "psql"
	Backend string `mapstructure:"backend"`

	// PostgreSQL connection string, required when backend = "psql".
	PsqlConn string `mapstructure:"psql-conn"`
}

func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{Backend: StoreBackendKV}
}

func (cfg *StoreConfig) ValidateBasic() error {
	switch cfg.Backend {
	case StoreBackendKV:
	case StoreBackendPsql:
		if cfg.PsqlConn == "" {
			return errors.New("psql-conn is required for the psql backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	return nil
}

//-----------------------------------------------------------------------------
// DeliveryConfig

type DeliveryConfig struct {
	// "reusable" or "single-use"
	CodePolicy string `mapstructure:"code-policy"`

	// Number of characters in an issued delivery code.
	CodeLength int `mapstructure:"code-length"`

	// How many fresh codes to draw when the store reports a collision
	// before giving up.
	MaxCodeAttempts int `mapstructure:"max-code-attempts"`
}

func DefaultDeliveryConfig() *DeliveryConfig {
	return &DeliveryConfig{
		CodePolicy:      CodePolicyReusable,
		CodeLength:      10,
		MaxCodeAttempts: 8,
	}
}

func (cfg *DeliveryConfig) ValidateBasic() error {
	switch cfg.CodePolicy {
	case CodePolicyReusable, CodePolicySingleUse:
	default:
		return fmt.Errorf("unknown code-policy %q", cfg.CodePolicy)
	}
	if cfg.CodeLength < 6 || cfg.CodeLength > 64 {
		return errors.New("code-length must be between 6 and 64")
	}
	if cfg.MaxCodeAttempts < 1 {
		return errors.New("max-code-attempts must be at least 1")
	}
	return nil
}

//-----------------------------------------------------------------------------
// AttestationConfig

// AttestationConfig bounds each external call made while attesting a
// review. A call that exceeds its timeout fails the attestation; the review
// stays committed locally.
type AttestationConfig struct {
	// When false, reviews are only committed locally even if the
	// submitter asks for attestation.
	Enabled bool `mapstructure:"enabled"`

	PutTimeout    time.Duration `mapstructure:"put-timeout"`
	VerifyTimeout time.Duration `mapstructure:"verify-timeout"`
	SubmitTimeout time.Duration `mapstructure:"submit-timeout"`
	FetchTimeout  time.Duration `mapstructure:"fetch-timeout"`
}

func DefaultAttestationConfig() *AttestationConfig {
	return &AttestationConfig{
		Enabled:       true,
		PutTimeout:    10 * time.Second,
		VerifyTimeout: 15 * time.Second,
		SubmitTimeout: 30 * time.Second,
		FetchTimeout:  10 * time.Second,
	}
}

func TestAttestationConfig() *AttestationConfig {
	return &AttestationConfig{
		Enabled:       true,
		PutTimeout:    time.Second,
		VerifyTimeout: time.Second,
		SubmitTimeout: time.Second,
		FetchTimeout:  time.Second,
	}
}

func (cfg *AttestationConfig) ValidateBasic() error {
	if cfg.PutTimeout <= 0 {
		return errors.New("put-timeout must be positive")
	}
	if cfg.VerifyTimeout <= 0 {
		return errors.New("verify-timeout must be positive")
	}
	if cfg.SubmitTimeout <= 0 {
		return errors.New("submit-timeout must be positive")
	}
	if cfg.FetchTimeout <= 0 {
		return errors.New("fetch-timeout must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ContentStoreConfig

type ContentStoreConfig struct {
	// "local" (tm-db in the db-dir) or "ipfs"
	Backend string `mapstructure:"backend"`

	// Base URL of the IPFS HTTP API, e.g. http://127.0.0.1:5001
	IPFSAddress string `mapstructure:"ipfs-addr"`
}

func DefaultContentStoreConfig() *ContentStoreConfig {
	return &ContentStoreConfig{
		Backend:     ContentStoreLocal,
		IPFSAddress: "http://127.0.0.1:5001",
	}
}

func (cfg *ContentStoreConfig) ValidateBasic() error {
	switch cfg.Backend {
	case ContentStoreLocal:
	case ContentStoreIPFS:
		if cfg.IPFSAddress == "" {
			return errors.New("ipfs-addr is required for the ipfs backend")
		}
	default:
		return fmt.Errorf("unknown content store backend %q", cfg.Backend)
	}
	return nil
}

//-----------------------------------------------------------------------------
// LedgerConfig

type LedgerConfig struct {
	// "embedded" or "remote"
	Mode string `mapstructure:"mode"`

	// RPC address of the ledger node, required in remote mode.
	RemoteAddress string `mapstructure:"remote-addr"`
}

func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		Mode:          LedgerModeEmbedded,
		RemoteAddress: "http://127.0.0.1:8658",
	}
}

func (cfg *LedgerConfig) ValidateBasic() error {
	switch cfg.Mode {
	case LedgerModeEmbedded:
	case LedgerModeRemote:
		if cfg.RemoteAddress == "" {
			return errors.New("remote-addr is required in remote mode")
		}
	default:
		return fmt.Errorf("unknown ledger mode %q", cfg.Mode)
	}
	return nil
}

//-----------------------------------------------------------------------------
// LedgerNodeConfig

// LedgerNodeConfig configures `attestd ledger start`, which serves the
// review registry contract to remote attestd processes.
type LedgerNodeConfig struct {
	ListenAddress string `mapstructure:"laddr"`

	// Hex encoded ed25519 public key allowed to write. Empty means the key
	// in signer-key-file.
	WriterPubKey string `mapstructure:"writer-pubkey"`
}

func DefaultLedgerNodeConfig() *LedgerNodeConfig {
	return &LedgerNodeConfig{ListenAddress: "tcp://127.0.0.1:8658"}
}

func TestLedgerNodeConfig() *LedgerNodeConfig {
	return &LedgerNodeConfig{ListenAddress: "tcp://127.0.0.1:0"}
}

func (cfg *LedgerNodeConfig) ValidateBasic() error {
	if cfg.WriterPubKey == "" {
		return nil
	}
	bz, err := hex.DecodeString(cfg.WriterPubKey)
	if err != nil {
		return fmt.Errorf("writer-pubkey: %w", err)
	}
	if len(bz) != 32 {
		return fmt.Errorf("writer-pubkey must be 32 bytes, got %d", len(bz))
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Maximum number of simultaneous connections.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max-open-connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":8660",
		MaxOpenConnections:   3,
		Namespace:            "reviewattest",
	}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max-open-connections can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
