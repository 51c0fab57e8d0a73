// Package config provides a reusable loader for relay-token ledger node
// configuration files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the unified configuration for a relay-token ledger node.
type Config struct {
	Node struct {
		DataDir        string `mapstructure:"data_dir" json:"data_dir"`
		DeviceKeyPath  string `mapstructure:"device_key_path" json:"device_key_path"`
	} `mapstructure:"node" json:"node"`

	DAG struct {
		MaxTransactions int           `mapstructure:"max_transactions" json:"max_transactions"`
		PruneInterval   time.Duration `mapstructure:"prune_interval" json:"prune_interval"`
	} `mapstructure:"dag" json:"dag"`

	Wallet struct {
		// StartingBalanceMicroRLT is the balance granted to a new wallet and
		// defaults to 0 (see DESIGN.md's Open Question decision).
		// DevTestStartingBalance holds the development figure (100 000 µRLT by
		// default); relaynode does not read it, so it changes nothing unless
		// copied into StartingBalanceMicroRLT.
		StartingBalanceMicroRLT uint64 `mapstructure:"starting_balance_urlt" json:"starting_balance_urlt"`
		DevTestStartingBalance  uint64 `mapstructure:"dev_test_starting_balance_urlt" json:"dev_test_starting_balance_urlt"`
	} `mapstructure:"wallet" json:"wallet"`

	Fee struct {
		MinTotalFeeMicroRLT   uint64 `mapstructure:"min_total_fee_urlt" json:"min_total_fee_urlt"`
		StaticHopFeeMicroRLT  uint64 `mapstructure:"static_hop_fee_urlt" json:"static_hop_fee_urlt"`
	} `mapstructure:"fee" json:"fee"`

	PoW struct {
		MinDifficulty int `mapstructure:"min_difficulty" json:"min_difficulty"`
		MaxDifficulty int `mapstructure:"max_difficulty" json:"max_difficulty"`
	} `mapstructure:"pow" json:"pow"`

	Anchoring struct {
		Interval       time.Duration `mapstructure:"interval" json:"interval"`
		MinInterval    time.Duration `mapstructure:"min_interval" json:"min_interval"`
		MinTxForAnchor int           `mapstructure:"min_tx_for_anchor" json:"min_tx_for_anchor"`
	} `mapstructure:"anchoring" json:"anchoring"`

	API struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"api" json:"api"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads the base "default" config file plus an optional env-specific
// overlay, then applies environment variable overrides. The resulting
// configuration is stored in AppConfig and returned.
func Load(env string) (*Config, error) {
	_ = godotenv.Load() // .env is optional; ignore a missing file

	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	applyDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("merge %s config: %w", env, err)
			}
		}
	}

	viper.SetEnvPrefix("RELAYMESH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the RELAYMESH_ENV environment
// variable to pick the overlay file.
func LoadFromEnv() (*Config, error) {
	return Load(envOrDefault("RELAYMESH_ENV", ""))
}

func applyDefaults() {
	viper.SetDefault("node.data_dir", "./data")
	viper.SetDefault("node.device_key_path", "./data/device.key")
	viper.SetDefault("dag.max_transactions", 1000)
	viper.SetDefault("dag.prune_interval", 5*time.Minute)
	viper.SetDefault("wallet.starting_balance_urlt", 0)
	viper.SetDefault("wallet.dev_test_starting_balance_urlt", 100_000)
	viper.SetDefault("fee.min_total_fee_urlt", 50)
	viper.SetDefault("fee.static_hop_fee_urlt", 100)
	viper.SetDefault("pow.min_difficulty", 1)
	viper.SetDefault("pow.max_difficulty", 8)
	viper.SetDefault("anchoring.interval", time.Hour)
	viper.SetDefault("anchoring.min_interval", 30*time.Minute)
	viper.SetDefault("anchoring.min_tx_for_anchor", 10)
	viper.SetDefault("api.listen_addr", ":8745")
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
