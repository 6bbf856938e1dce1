package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"escrowchain/crypto"
)

var testResolver = crypto.FormatAccount([20]byte{0x0F, 0x0F})

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.NoError(t, cfg.Validate())
	require.Equal(t, uint64(600), cfg.Payment.RefundWindow)
	require.Equal(t, 50, cfg.Payment.MaxRemarkLength)
	require.Equal(t, 1000, cfg.Payment.MaxScheduledTasks)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Payment.Resolver, reloaded.Payment.Resolver)
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/escrow"
Database = "Memory"
BlockInterval = "2s"

[Payment]
RefundWindow = 10
MaxRemarkLength = 64
MaxScheduledTasks = 5
Resolver = "`+testResolver+`"

[Log]
Level = "debug"
File = "/var/log/payd.log"

[Auth]
Enabled = true
HMACSecret = "s3cret"
Audience = "payd"

[RateLimit]
RequestsPerMinute = 30
Burst = 3

[Telemetry]
Traces = true
SampleRatio = 0.5

[Pauses]
Payment = true

[[Assets]]
Symbol = "usdc"
Name = "USD Coin"
Decimals = 6

[[Genesis]]
Account = "`+testResolver+`"
Asset = "USDC"
Amount = "1000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, DatabaseMemory, cfg.Database)
	require.Equal(t, "payd", cfg.Log.Service)
	require.True(t, cfg.Pauses.Payment)
	require.Equal(t, "/var/lib/escrow/events.db", cfg.ResolvePath(cfg.EventLogPath))

	period, err := cfg.BlockPeriod()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, period)

	params, err := cfg.PaymentParams()
	require.NoError(t, err)
	require.Equal(t, uint64(10), params.RefundWindow)
	require.Equal(t, [20]byte{0x0F, 0x0F}, params.Resolver)

	balances, err := cfg.GenesisBalances()
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.Equal(t, "USDC", balances[0].Asset)
	require.Equal(t, int64(1000), balances[0].Amount.Int64())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "ValidatorKey = \"abc\"\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "ValidatorKey")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Payment.Resolver = testResolver
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"zero refund window": func(c *Config) { c.Payment.RefundWindow = 0 },
		"zero task cap":      func(c *Config) { c.Payment.MaxScheduledTasks = 0 },
		"remark too large":   func(c *Config) { c.Payment.MaxRemarkLength = 257 },
		"missing resolver":   func(c *Config) { c.Payment.Resolver = "" },
		"foreign resolver":   func(c *Config) { c.Payment.Resolver = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4" },
		"unknown database":   func(c *Config) { c.Database = "postgres" },
		"bad interval":       func(c *Config) { c.BlockInterval = "soon" },
		"auth without key":   func(c *Config) { c.Auth.Enabled = true },
		"sample ratio":       func(c *Config) { c.Telemetry.SampleRatio = 2 },
		"genesis unknown asset": func(c *Config) {
			c.Genesis = []GenesisBalance{{Account: testResolver, Asset: "DOT", Amount: "1"}}
		},
		"genesis bad amount": func(c *Config) {
			c.Assets = []Asset{{Symbol: "DOT", Name: "Polkadot"}}
			c.Genesis = []GenesisBalance{{Account: testResolver, Asset: "DOT", Amount: "-4"}}
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
