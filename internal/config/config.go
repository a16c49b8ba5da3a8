package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const chainIDHarmony = 1666600000

type Config struct {
	Chain struct {
		ID                uint64 `yaml:"id"`
		RPCHTTP           string `yaml:"rpc_http"`
		RPCWS             string `yaml:"rpc_ws"`
		WalletPK          string `yaml:"wallet_pk"`
		EIP1559           bool   `yaml:"eip1559"`
		LegacyGasPriceWei uint64 `yaml:"legacy_gas_price_wei"`
		GasLimitCap       uint64 `yaml:"gas_limit_cap"`
	} `yaml:"chain"`

	Routers struct {
		Underlying string `yaml:"underlying"`
		Relay      string `yaml:"relay"`
	} `yaml:"routers"`

	Relay struct {
		URI        string `yaml:"uri"`
		APIKey     string `yaml:"api_key"`
		TTLSeconds int64  `yaml:"ttl_seconds"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"relay"`

	Tips struct {
		GasURL  string `yaml:"gas_url"`
		TipsURL string `yaml:"tips_url"`
	} `yaml:"tips"`

	Swap struct {
		SlippageBps     int   `yaml:"slippage_bps"`
		DeadlineSeconds int64 `yaml:"deadline_seconds"`
	} `yaml:"swap"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Timings struct {
		HeadPollMs int `yaml:"head_poll_ms"`
	} `yaml:"timings"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Relay.TTLSeconds == 0 {
		c.Relay.TTLSeconds = 600
	}
	if c.Relay.MaxRetries == 0 {
		c.Relay.MaxRetries = 3
	}
	if c.Swap.SlippageBps == 0 {
		c.Swap.SlippageBps = 50
	}
	if c.Swap.DeadlineSeconds == 0 {
		c.Swap.DeadlineSeconds = 1200
	}
	if c.Timings.HeadPollMs == 0 {
		c.Timings.HeadPollMs = 4000
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "archerswap:tx"
	}
	// Harmony never activated EIP-1559; wallets there expect an explicit price.
	if c.Chain.ID == chainIDHarmony && c.Chain.LegacyGasPriceWei == 0 {
		c.Chain.LegacyGasPriceWei = 2_000_000_000
	}
	return &c, nil
}

func (c *Config) HeadPoll() time.Duration {
	return time.Duration(c.Timings.HeadPollMs) * time.Millisecond
}

func (c *Config) RelayTTL() time.Duration {
	return time.Duration(c.Relay.TTLSeconds) * time.Second
}

func (c *Config) SwapDeadline() time.Duration {
	return time.Duration(c.Swap.DeadlineSeconds) * time.Second
}
