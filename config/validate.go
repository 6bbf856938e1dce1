package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"escrowchain/crypto"
	"escrowchain/native/payment"
)

// MaxRemarkLengthLimit bounds the configurable remark size.
const MaxRemarkLengthLimit = 256

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Payment.RefundWindow == 0 {
		return fmt.Errorf("payment: RefundWindow must be positive")
	}
	if c.Payment.MaxScheduledTasks <= 0 {
		return fmt.Errorf("payment: MaxScheduledTasks must be positive")
	}
	if c.Payment.MaxRemarkLength < 0 || c.Payment.MaxRemarkLength > MaxRemarkLengthLimit {
		return fmt.Errorf("payment: MaxRemarkLength must be within [0,%d]", MaxRemarkLengthLimit)
	}
	if strings.TrimSpace(c.Payment.Resolver) == "" {
		return fmt.Errorf("payment: Resolver required")
	}
	if _, err := crypto.ParseAccount(c.Payment.Resolver); err != nil {
		return fmt.Errorf("payment: Resolver: %w", err)
	}
	switch c.Database {
	case DatabaseLevelDB, DatabaseMemory:
	default:
		return fmt.Errorf("unknown Database %q", c.Database)
	}
	if _, err := c.BlockPeriod(); err != nil {
		return err
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: HMACSecret required when enabled")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	for i, asset := range c.Assets {
		if _, err := payment.NormalizeAsset(asset.Symbol); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
	}
	if _, err := c.GenesisBalances(); err != nil {
		return err
	}
	return nil
}

// BlockPeriod parses BlockInterval.
func (c *Config) BlockPeriod() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.BlockInterval))
	if err != nil {
		return 0, fmt.Errorf("invalid BlockInterval %q: %w", c.BlockInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("BlockInterval must be positive")
	}
	return d, nil
}

// PaymentParams converts the Payment section into engine parameters.
func (c *Config) PaymentParams() (payment.Params, error) {
	resolver, err := crypto.ParseAccount(c.Payment.Resolver)
	if err != nil {
		return payment.Params{}, fmt.Errorf("payment: Resolver: %w", err)
	}
	return payment.Params{
		RefundWindow:      c.Payment.RefundWindow,
		MaxRemarkLength:   c.Payment.MaxRemarkLength,
		MaxScheduledTasks: c.Payment.MaxScheduledTasks,
		Resolver:          resolver,
	}, nil
}

// Balance is a parsed genesis allocation.
type Balance struct {
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

// GenesisBalances parses the Genesis allocations. Every referenced asset must
// be listed under Assets.
func (c *Config) GenesisBalances() ([]Balance, error) {
	known := make(map[string]bool, len(c.Assets))
	for _, asset := range c.Assets {
		symbol, err := payment.NormalizeAsset(asset.Symbol)
		if err == nil {
			known[symbol] = true
		}
	}
	out := make([]Balance, 0, len(c.Genesis))
	for i, entry := range c.Genesis {
		account, err := crypto.ParseAccount(entry.Account)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: account: %w", i, err)
		}
		symbol, err := payment.NormalizeAsset(entry.Asset)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if !known[symbol] {
			return nil, fmt.Errorf("genesis[%d]: asset %s not listed under Assets", i, symbol)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("genesis[%d]: invalid amount %q", i, entry.Amount)
		}
		out = append(out, Balance{Account: account, Asset: symbol, Amount: amount})
	}
	return out, nil
}
