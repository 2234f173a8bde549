package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/vitwit/bando/commerce"
	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/types"
	"github.com/vitwit/bando/utils"
)

const (
	defaultEnv                 = "sandbox"
	defaultEVMChainID          = 42161
	defaultSolanaRPC           = "https://api.mainnet-beta.solana.com"
	defaultLogLevel            = "info"
	defaultHTTPTimeout         = 30 * time.Second
	defaultConfirmationTimeout = 120 * time.Second
	defaultPollInterval        = 2 * time.Second
	defaultCatalogCacheTTL     = 5 * time.Minute

	// catalog requests per minute
	defaultRateLimitWithToken = 100
	defaultRateLimitAnonymous = 10
)

// Config is the process configuration read from the environment.
type Config struct {
	Env       string `validate:"oneof=sandbox production"`
	APIURL    string `validate:"required,url"`
	APIToken  string
	Reference string

	EVM    EVMConfig
	Solana SolanaConfig

	LogLevel      string `validate:"oneof=debug info warn error"`
	EnableMetrics bool

	HTTPTimeout         time.Duration `validate:"gt=0"`
	ConfirmationTimeout time.Duration `validate:"gt=0"`
	PollInterval        time.Duration `validate:"gt=0"`
	CatalogCacheTTL     time.Duration `validate:"gte=0"`
	CatalogRateLimit    int           // requests per minute, non-positive is unlimited
}

type EVMConfig struct {
	RPCURL     string `validate:"omitempty,url"`
	PrivateKey string
	ChainID    types.ChainID `validate:"gt=0"`
}

type SolanaConfig struct {
	RPCURL     string `validate:"omitempty,url"`
	PrivateKey string
}

// Load reads an optional .env file (or the given files) and then the
// environment. A missing env file is not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, types.NewError(types.ErrConfigError, types.StageConfig, "cannot read env file", err)
	}

	env := strings.ToLower(valueOrDefault("BANDO_ENV", defaultEnv))
	token := os.Getenv("BANDO_API_TOKEN")

	cfg := Config{
		Env:       env,
		APIURL:    valueOrDefault("BANDO_API_URL", commerce.BaseURL(env)),
		APIToken:  token,
		Reference: os.Getenv("REFERENCE"),
		EVM: EVMConfig{
			RPCURL:     os.Getenv("EVM_RPC_URL"),
			PrivateKey: firstOf("EVM_PRIVATE_KEY", "PK_EVM"),
		},
		Solana: SolanaConfig{
			RPCURL:     valueOrDefault("SOLANA_RPC_URL", defaultSolanaRPC),
			PrivateKey: firstOf("SOLANA_PRIVATE_KEY", "PK_SVM"),
		},
		LogLevel:      strings.ToLower(valueOrDefault("LOG_LEVEL", defaultLogLevel)),
		EnableMetrics: parseBoolWithDefault("ENABLE_METRICS", false),
	}

	chainID, err := parseIntWithDefault("EVM_CHAIN_ID", defaultEVMChainID)
	if err != nil {
		return Config{}, err
	}
	cfg.EVM.ChainID = types.ChainID(chainID)

	rateDefault := defaultRateLimitAnonymous
	if token != "" {
		rateDefault = defaultRateLimitWithToken
	}
	if cfg.CatalogRateLimit, err = parseIntWithDefault("CATALOG_RATE_LIMIT", int64(rateDefault)); err != nil {
		return Config{}, err
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"HTTP_TIMEOUT", defaultHTTPTimeout, &cfg.HTTPTimeout},
		{"CONFIRMATION_TIMEOUT", defaultConfirmationTimeout, &cfg.ConfirmationTimeout},
		{"CONFIRMATION_POLL_INTERVAL", defaultPollInterval, &cfg.PollInterval},
		{"CATALOG_CACHE_TTL", defaultCatalogCacheTTL, &cfg.CatalogCacheTTL},
	}
	for _, d := range durations {
		if *d.dst, err = parseDurationWithDefault(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// Validate checks the configuration's shape. Keys are checked only when a
// client is built from them.
func (c Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return types.NewError(types.ErrConfigError, types.StageConfig, "invalid configuration", err)
	}
	return nil
}

// PrivateKeyFor returns the configured key for a virtual machine type.
func (c Config) PrivateKeyFor(vm types.VMType) (string, error) {
	var key string
	switch vm {
	case types.VMTypeEVM:
		key = c.EVM.PrivateKey
	case types.VMTypeSVM:
		key = c.Solana.PrivateKey
	default:
		return "", types.NewError(types.ErrConfigError, types.StageConfig,
			fmt.Sprintf("unknown virtual machine type %q", vm), nil)
	}
	if key == "" {
		return "", types.NewError(types.ErrConfigError, types.StageConfig,
			fmt.Sprintf("no private key configured for PK_%s", vm), nil)
	}
	return key, nil
}

// EVMNetwork returns the preset for the configured chain id, or an ad hoc
// network when the id is not a known preset.
func (c Config) EVMNetwork() types.Network {
	if n, ok := types.NetworkByChainID(c.EVM.ChainID); ok {
		return n
	}
	return types.Network{
		Key:     "evm-" + c.EVM.ChainID.String(),
		ChainID: c.EVM.ChainID,
		Family:  types.ChainEVM,
	}
}

// ClientConfig builds the chain client settings for network. EVM_RPC_URL
// only applies to EVM_CHAIN_ID; other networks use fallbackRPC.
func (c Config) ClientConfig(network types.Network, privateKey, fallbackRPC string) types.ClientConfig {
	var rpcURL string
	switch {
	case network.IsSolana():
		rpcURL = c.Solana.RPCURL
	case network.ChainID == c.EVM.ChainID:
		rpcURL = c.EVM.RPCURL
	}
	if rpcURL == "" {
		rpcURL = fallbackRPC
	}
	return types.ClientConfig{
		RPCUrl:       rpcURL,
		PrivateKey:   privateKey,
		PollInterval: c.PollInterval,
	}
}

// BandoConfig returns the flow settings.
func (c Config) BandoConfig() *types.BandoConfig {
	return &types.BandoConfig{
		HTTPTimeout:         c.HTTPTimeout,
		ConfirmationTimeout: c.ConfirmationTimeout,
		Integrator:          types.Integrator,
		LogLevel:            c.LogLevel,
		EnableMetrics:       c.EnableMetrics,
	}
}

// CatalogLimiter allows CatalogRateLimit catalog requests per minute. A
// non-positive limit disables limiting.
func (c Config) CatalogLimiter() *rate.Limiter {
	if c.CatalogRateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.CatalogRateLimit)), c.CatalogRateLimit)
}

// LogFields is the configuration as it may be logged. Secrets only report
// whether they are set.
func (c Config) LogFields() map[string]any {
	return map[string]any{
		"env":                  c.Env,
		"api_url":              c.APIURL,
		"api_token_set":        c.APIToken != "",
		"evm_rpc_url":          c.EVM.RPCURL,
		"evm_chain_id":         c.EVM.ChainID.String(),
		"evm_key_set":          c.EVM.PrivateKey != "",
		"solana_rpc_url":       c.Solana.RPCURL,
		"solana_key_set":       c.Solana.PrivateKey != "",
		"reference_set":        c.Reference != "",
		"log_level":            c.LogLevel,
		"metrics":              c.EnableMetrics,
		"http_timeout":         c.HTTPTimeout.String(),
		"confirmation_timeout": c.ConfirmationTimeout.String(),
		"poll_interval":        c.PollInterval.String(),
		"catalog_cache_ttl":    c.CatalogCacheTTL.String(),
		"catalog_rate_limit":   c.CatalogRateLimit,
	}
}

// Logger builds the process logger at the configured level.
func (c Config) Logger(console bool) logger.Logger {
	return logger.NewZapLogger(c.LogLevel, console)
}

func valueOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func firstOf(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int64) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return int(fallback), nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, types.NewError(types.ErrConfigError, types.StageConfig,
			fmt.Sprintf("invalid %s value %q", key, v), err)
	}
	return n, nil
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, types.NewError(types.ErrConfigError, types.StageConfig,
			fmt.Sprintf("invalid %s value %q", key, v), err)
	}
	return d, nil
}
