package config

const (
	DatabaseLevelDB = "leveldb"
	DatabaseMemory  = "memory"
)

// Payment carries the escrow engine constants.
type Payment struct {
	RefundWindow      uint64 `toml:"RefundWindow"`
	MaxRemarkLength   int    `toml:"MaxRemarkLength"`
	MaxScheduledTasks int    `toml:"MaxScheduledTasks"`
	// Resolver is the bech32 account stamped on new payments.
	Resolver string `toml:"Resolver"`
}

type Log struct {
	Service    string `toml:"Service"`
	Env        string `toml:"Env"`
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Auth configures bearer-token caller authentication on the RPC surface.
type Auth struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
}

type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
	Headers     string  `toml:"Headers"`
}

type Pauses struct {
	Payment bool `toml:"Payment"`
}

// Asset registers a ledger asset on first start.
type Asset struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// GenesisBalance is deposited into Account on first start. Amount is a base
// unit decimal string.
type GenesisBalance struct {
	Account string `toml:"Account"`
	Asset   string `toml:"Asset"`
	Amount  string `toml:"Amount"`
}
