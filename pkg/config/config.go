// Package config provides a reusable loader for the engine daemon's
// configuration files and environment variable overrides. Grounded on
// pkg/config/config.go's viper-backed Load/LoadFromEnv pattern, its
// sections narrowed from a network node's (network/consensus/VM/storage)
// to this engine's socket, gas, and trie-store-backend settings.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"execution-engine/pkg/utils"
)

// Config is the unified configuration for an engine daemon process. It
// mirrors the structure of the YAML file cmd/engine looks for under
// ./config or the current directory.
type Config struct {
	RPC struct {
		SocketPath     string `mapstructure:"socket_path" json:"socket_path"`
		RateLimitRPS   int    `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
		RateLimitBurst int    `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`
	} `mapstructure:"rpc" json:"rpc"`

	Gas struct {
		DefaultDeployLimit uint64 `mapstructure:"default_deploy_limit" json:"default_deploy_limit"`
		PaymentCodeReserve uint64 `mapstructure:"payment_code_reserve" json:"payment_code_reserve"`
	} `mapstructure:"gas" json:"gas"`

	Storage struct {
		Backend string `mapstructure:"backend" json:"backend"` // "mem" or "bolt"
		DBPath  string `mapstructure:"db_path" json:"db_path"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

func setDefaults() {
	viper.SetDefault("rpc.socket_path", "/tmp/execution-engine.sock")
	viper.SetDefault("rpc.rate_limit_rps", 200)
	viper.SetDefault("rpc.rate_limit_burst", 50)
	viper.SetDefault("gas.default_deploy_limit", 10_000_000)
	viper.SetDefault("gas.payment_code_reserve", 100_000)
	viper.SetDefault("storage.backend", "mem")
	viper.SetDefault("storage.db_path", "./engine.db")
	viper.SetDefault("logging.level", "info")
}

// Load reads the base "default" config file and, if env is non-empty,
// merges an environment-specific override file on top of it, then
// applies environment variable overrides. The result is stored in
// AppConfig and returned.
func Load(env string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/engine/config")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ENGINE")

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}

	// viper's AutomaticEnv only binds keys it has already seen via Get,
	// which Unmarshal does not reliably trigger for nested struct fields;
	// apply the same ENGINE_-prefixed overrides explicitly so
	// environment variables reach these fields even when no config file
	// sets them.
	AppConfig.RPC.RateLimitRPS = utils.EnvOrDefaultInt("ENGINE_RPC_RATE_LIMIT_RPS", AppConfig.RPC.RateLimitRPS)
	AppConfig.RPC.RateLimitBurst = utils.EnvOrDefaultInt("ENGINE_RPC_RATE_LIMIT_BURST", AppConfig.RPC.RateLimitBurst)
	AppConfig.Gas.DefaultDeployLimit = utils.EnvOrDefaultUint64("ENGINE_GAS_DEFAULT_DEPLOY_LIMIT", AppConfig.Gas.DefaultDeployLimit)
	AppConfig.Gas.PaymentCodeReserve = utils.EnvOrDefaultUint64("ENGINE_GAS_PAYMENT_CODE_RESERVE", AppConfig.Gas.PaymentCodeReserve)

	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ENGINE_ENV environment
// variable to select an override file, defaulting to the base config
// alone when unset.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("ENGINE_ENV", ""))
}
