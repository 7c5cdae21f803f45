package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for the mint escrow daemon.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	Environment   string         `yaml:"environment"`
	DataDir       string         `yaml:"data_dir"`
	LockTime      Duration       `yaml:"lock_time"`
	Pricing       PricingConfig  `yaml:"pricing"`
	Verifier      VerifierConfig `yaml:"verifier"`
	Registry      RegistryConfig `yaml:"registry"`
}

// PricingConfig parameterises the deposit cost computation.
type PricingConfig struct {
	MinDeposit     string `yaml:"min_deposit"`
	PricePerPoint  string `yaml:"price_per_point"`
	StorageReserve string `yaml:"storage_reserve"`
	CostTablePath  string `yaml:"cost_table"`
}

// VerifierConfig selects and parameterises the proof verification strategy.
type VerifierConfig struct {
	Strategy         string   `yaml:"strategy"` // "bridge" or "signature"
	BridgeEndpoint   string   `yaml:"bridge_endpoint"`
	RemoteVerifier   string   `yaml:"remote_verifier"`
	TrustedPublicKey string   `yaml:"trusted_public_key"`
	BridgeTimeout    Duration `yaml:"bridge_timeout"`
}

// RegistryConfig points at the external token registry receiving mint calls.
type RegistryConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Contract        string `yaml:"contract"`
	AttachedDeposit string `yaml:"attached_deposit"`
	GasBudget       uint64 `yaml:"gas_budget"`
}

// Load reads and validates the configuration at the supplied path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8546"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if c.LockTime.Duration == 0 {
		c.LockTime.Duration = time.Hour
	}
	if c.Verifier.BridgeTimeout.Duration == 0 {
		c.Verifier.BridgeTimeout.Duration = 30 * time.Second
	}
	if strings.TrimSpace(c.Verifier.Strategy) == "" {
		c.Verifier.Strategy = "signature"
	}
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if _, err := c.MinDeposit(); err != nil {
		return err
	}
	if _, err := c.PricePerPoint(); err != nil {
		return err
	}
	if _, err := c.StorageReserve(); err != nil {
		return err
	}
	switch c.Verifier.Strategy {
	case "bridge":
		if strings.TrimSpace(c.Verifier.BridgeEndpoint) == "" {
			return fmt.Errorf("config: bridge strategy requires bridge_endpoint")
		}
		if strings.TrimSpace(c.Verifier.RemoteVerifier) == "" {
			return fmt.Errorf("config: bridge strategy requires remote_verifier")
		}
	case "signature":
		if strings.TrimSpace(c.Verifier.TrustedPublicKey) == "" {
			return fmt.Errorf("config: signature strategy requires trusted_public_key")
		}
	default:
		return fmt.Errorf("config: unknown verifier strategy %q", c.Verifier.Strategy)
	}
	if c.Verifier.BridgeTimeout.Duration >= c.LockTime.Duration {
		return fmt.Errorf("config: bridge_timeout must be below lock_time")
	}
	return nil
}

// MinDeposit parses the configured minimum deposit.
func (c *Config) MinDeposit() (*big.Int, error) {
	return parseAmount("min_deposit", c.Pricing.MinDeposit, true)
}

// PricePerPoint parses the configured per-point price.
func (c *Config) PricePerPoint() (*big.Int, error) {
	return parseAmount("price_per_point", c.Pricing.PricePerPoint, false)
}

// StorageReserve parses the configured minting-cost reserve.
func (c *Config) StorageReserve() (*big.Int, error) {
	if strings.TrimSpace(c.Pricing.StorageReserve) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount("storage_reserve", c.Pricing.StorageReserve, false)
}

// AttachedDeposit parses the fixed protocol deposit attached to mint calls.
func (c *Config) AttachedDeposit() (*big.Int, error) {
	if strings.TrimSpace(c.Registry.AttachedDeposit) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount("attached_deposit", c.Registry.AttachedDeposit, false)
}

func parseAmount(field, raw string, requirePositive bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("config: %s required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("config: invalid %s: %s", field, raw)
	}
	if value.Sign() < 0 || (requirePositive && value.Sign() == 0) {
		return nil, fmt.Errorf("config: %s must be positive", field)
	}
	return value, nil
}
