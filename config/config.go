package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"escrowchain/crypto"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	// Database selects the state backend: "leveldb" or "memory".
	Database     string `toml:"Database"`
	EventLogPath string `toml:"EventLogPath"`
	// BlockInterval is the host block period, e.g. "6s".
	BlockInterval string `toml:"BlockInterval"`

	Payment   Payment          `toml:"Payment"`
	Log       Log              `toml:"Log"`
	Auth      Auth             `toml:"Auth"`
	RateLimit RateLimit        `toml:"RateLimit"`
	Telemetry Telemetry        `toml:"Telemetry"`
	Pauses    Pauses           `toml:"Pauses"`
	Assets    []Asset          `toml:"Assets"`
	Genesis   []GenesisBalance `toml:"Genesis"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists. The result has defaults applied but is not validated.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration populated with defaults and no resolver.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./escrow-data",
		Database:      DatabaseLevelDB,
		EventLogPath:  "events.db",
		BlockInterval: "6s",
		Payment: Payment{
			RefundWindow:      600,
			MaxRemarkLength:   50,
			MaxScheduledTasks: 1000,
		},
		Log: Log{
			Service:    "payd",
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Auth: Auth{
			Issuer: "escrowchain",
		},
		RateLimit: RateLimit{
			RequestsPerMinute: 120,
			Burst:             20,
		},
	}
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaults.ListenAddress
	}
	if strings.TrimSpace(c.Database) == "" {
		c.Database = defaults.Database
	}
	c.Database = strings.ToLower(strings.TrimSpace(c.Database))
	if strings.TrimSpace(c.BlockInterval) == "" {
		c.BlockInterval = defaults.BlockInterval
	}
	if strings.TrimSpace(c.Log.Service) == "" {
		c.Log.Service = defaults.Log.Service
	}
}

// createDefault creates and saves a default configuration file. A fresh
// resolver account is generated so the file validates out of the box.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.Payment.Resolver = key.PubKey().Address().String()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ResolvePath anchors relative paths inside DataDir.
func (c *Config) ResolvePath(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
