package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	ContractAddress string
	TokenDecimals   uint8

	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Port       int
	StartBlock uint64
	BatchSize  uint64
	MaxRetries int
	RetryDelay time.Duration
	BlockTime  time.Duration

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
// Environment variables use the TRACKER_ prefix (TRACKER_RPC, TRACKER_PORT, ...).
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("token-decimals", 6)
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-db", 0)
	v.SetDefault("port", 3000)
	v.SetDefault("start-block", uint64(11975000))
	v.SetDefault("batch-size", uint64(100))
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-delay", time.Second)
	v.SetDefault("block-time", 2*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		ContractAddress: v.GetString("contract"),
		TokenDecimals:   uint8(v.GetUint("token-decimals")),
		DatabaseDSN:     v.GetString("pg-dsn"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisPassword:   v.GetString("redis-password"),
		RedisDB:         v.GetInt("redis-db"),
		Port:            v.GetInt("port"),
		StartBlock:      v.GetUint64("start-block"),
		BatchSize:       v.GetUint64("batch-size"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryDelay:      v.GetDuration("retry-delay"),
		BlockTime:       v.GetDuration("block-time"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks that the settings required to reach the chain are present.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if c.BlockTime <= 0 {
		return fmt.Errorf("block time must be positive")
	}
	return nil
}
