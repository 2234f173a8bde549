package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vitwit/bando/commerce"
	"github.com/vitwit/bando/types"
)

var envKeys = []string{
	"BANDO_ENV", "BANDO_API_URL", "BANDO_API_TOKEN",
	"EVM_RPC_URL", "EVM_PRIVATE_KEY", "PK_EVM", "EVM_CHAIN_ID",
	"SOLANA_RPC_URL", "SOLANA_PRIVATE_KEY", "PK_SVM",
	"LOG_LEVEL", "ENABLE_METRICS",
	"HTTP_TIMEOUT", "CONFIRMATION_TIMEOUT", "CONFIRMATION_POLL_INTERVAL",
	"CATALOG_CACHE_TTL", "CATALOG_RATE_LIMIT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(missingFile(t))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "sandbox", cfg.Env)
	require.Equal(t, commerce.SandboxURL, cfg.APIURL)
	require.Equal(t, types.ChainID(42161), cfg.EVM.ChainID)
	require.Equal(t, defaultSolanaRPC, cfg.Solana.RPCURL)
	require.Equal(t, "info", cfg.LogLevel)
	require.False(t, cfg.EnableMetrics)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 120*time.Second, cfg.ConfirmationTimeout)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.Equal(t, 10, cfg.CatalogRateLimit)
	require.Equal(t, types.NetworkArbitrum, cfg.EVMNetwork())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BANDO_ENV", "production")
	t.Setenv("BANDO_API_TOKEN", "tok")
	t.Setenv("EVM_CHAIN_ID", "8453")
	t.Setenv("PK_EVM", "0xabc")
	t.Setenv("PK_SVM", "base58key")
	t.Setenv("CONFIRMATION_TIMEOUT", "45s")
	t.Setenv("ENABLE_METRICS", "true")

	cfg, err := Load(missingFile(t))
	require.NoError(t, err)

	require.Equal(t, commerce.ProductionURL, cfg.APIURL)
	require.Equal(t, 100, cfg.CatalogRateLimit)
	require.Equal(t, types.NetworkBase, cfg.EVMNetwork())
	require.Equal(t, 45*time.Second, cfg.ConfirmationTimeout)
	require.True(t, cfg.EnableMetrics)

	key, err := cfg.PrivateKeyFor(types.VMTypeEVM)
	require.NoError(t, err)
	require.Equal(t, "0xabc", key)

	key, err = cfg.PrivateKeyFor(types.VMTypeSVM)
	require.NoError(t, err)
	require.Equal(t, "base58key", key)
}

func TestLoadPrefersExplicitKeyNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("EVM_PRIVATE_KEY", "0x111")
	t.Setenv("PK_EVM", "0x222")

	cfg, err := Load(missingFile(t))
	require.NoError(t, err)
	require.Equal(t, "0x111", cfg.EVM.PrivateKey)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv("REFERENCE"))
	t.Cleanup(func() { _ = os.Unsetenv("REFERENCE") })

	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("REFERENCE=buyer@example.com\n"), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, "buyer@example.com", cfg.Reference)
}

func TestLoadInvalidValues(t *testing.T) {
	for key, value := range map[string]string{
		"EVM_CHAIN_ID":       "arbitrum",
		"HTTP_TIMEOUT":       "thirty",
		"CATALOG_RATE_LIMIT": "many",
	} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load(missingFile(t))
			require.True(t, types.IsCode(err, types.ErrConfigError))
		})
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(missingFile(t))
	require.NoError(t, err)

	bad := cfg
	bad.LogLevel = "verbose"
	require.True(t, types.IsCode(bad.Validate(), types.ErrConfigError))

	bad = cfg
	bad.EVM.RPCURL = "not a url"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.PollInterval = 0
	require.Error(t, bad.Validate())
}

func TestUnlimitedCatalogRate(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_RATE_LIMIT", "0")
	cfg, err := Load(missingFile(t))
	require.NoError(t, err)

	require.Equal(t, 0, cfg.CatalogRateLimit)
	require.NoError(t, cfg.Validate())
	require.Nil(t, cfg.CatalogLimiter())
}

func TestPrivateKeyMissing(t *testing.T) {
	var cfg Config
	_, err := cfg.PrivateKeyFor(types.VMTypeSVM)
	require.True(t, types.IsCode(err, types.ErrConfigError))
	require.Contains(t, err.Error(), "PK_SVM")
}

func TestLogFieldsHideSecrets(t *testing.T) {
	cfg := Config{
		APIToken: "secret-token",
		EVM:      EVMConfig{PrivateKey: "0xdeadbeefcafe"},
		Solana:   SolanaConfig{PrivateKey: "5Kb8kLf9zgWQnogidDA76MzPL6TsZZY36hWXMssSzNyd"},
	}

	fields := cfg.LogFields()
	require.Equal(t, true, fields["evm_key_set"])
	require.Equal(t, true, fields["api_token_set"])
	for _, v := range fields {
		require.NotEqual(t, "secret-token", v)
		require.NotEqual(t, "0xdeadbeefcafe", v)
		require.NotEqual(t, cfg.Solana.PrivateKey, v)
	}
}

func TestEVMNetworkUnknownChain(t *testing.T) {
	cfg := Config{EVM: EVMConfig{ChainID: 10}}
	n := cfg.EVMNetwork()
	require.Equal(t, "evm-10", n.Key)
	require.True(t, n.IsEVM())
}

func TestCatalogLimiter(t *testing.T) {
	require.Nil(t, Config{}.CatalogLimiter())

	l := Config{CatalogRateLimit: 60}.CatalogLimiter()
	require.NotNil(t, l)
	require.Equal(t, 60, l.Burst())
}

func TestClientConfigRPC(t *testing.T) {
	cfg := Config{
		EVM:          EVMConfig{RPCURL: "https://arb.example", ChainID: 42161},
		Solana:       SolanaConfig{RPCURL: "https://sol.example"},
		PollInterval: time.Second,
	}

	cc := cfg.ClientConfig(types.NetworkArbitrum, "0xkey", "https://catalog.example")
	require.Equal(t, "https://arb.example", cc.RPCUrl)
	require.Equal(t, "0xkey", cc.PrivateKey)
	require.Equal(t, time.Second, cc.PollInterval)

	require.Equal(t, "https://catalog.example", cfg.ClientConfig(types.NetworkPolygon, "k", "https://catalog.example").RPCUrl)
	require.Equal(t, "https://sol.example", cfg.ClientConfig(types.NetworkSolana, "k", "https://catalog.example").RPCUrl)
}
