// Package config loads phasewatch configuration from a YAML file, an
// encrypted YAML file or PHASEWATCH_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidWindowSize = errors.New("window size must be at least 1")
	ErrNoChannels        = errors.New("at least one channel is required")
	ErrDuplicateChannel  = errors.New("duplicate channel")
	ErrInvalidThreshold  = errors.New("threshold must be positive")
	ErrInvalidPolicy     = errors.New("error policy must be fail or skip")
	ErrInvalidChunkSize  = errors.New("store chunk size must be positive")
	ErrInvalidLimit      = errors.New("store limit must be positive")
)

// Default configuration values.
const (
	DefaultWindowSize  = 30
	DefaultThreshold   = 3.0
	DefaultErrorPolicy = "fail"
	DefaultChunkSize   = 5000
	DefaultLimit       = 5000
	DefaultServerAddr  = ":8080"
	DefaultRedisAddr   = "localhost:6379"
	DefaultStorePath   = "phasewatch.db"

	envPrefix    = "PHASEWATCH"
	encryptedExt = ".enc"
)

// DefaultChannels is used when no channel list is configured.
var DefaultChannels = []string{"CAM1", "CAM2", "CAM3", "CAM4", "CAM5", "CAM6"}

type Config struct {
	WindowSize  int      `mapstructure:"window_size"`
	Channels    []string `mapstructure:"channels"`
	Threshold   float64  `mapstructure:"threshold"`
	ErrorPolicy string   `mapstructure:"error_policy"`
	Workers     int      `mapstructure:"workers"`

	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	QueueSize       int           `mapstructure:"queue_size"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type StoreConfig struct {
	Path      string `mapstructure:"path"`
	ChunkSize int    `mapstructure:"chunk_size"`
	Limit     int    `mapstructure:"limit"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from configPath and the environment. A
// path ending in .enc is decrypted with the key in CONFIG_KEY first. An
// empty path searches for phasewatch.yaml in the usual places.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()
	setDefaults(viperCfg)

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	switch {
	case strings.HasSuffix(configPath, encryptedExt):
		plain, err := readEncrypted(configPath)
		if err != nil {
			return nil, err
		}
		viperCfg.SetConfigType("yaml")
		if err := viperCfg.ReadConfig(bytes.NewReader(plain)); err != nil {
			return nil, fmt.Errorf("failed to parse decrypted config: %w", err)
		}

	case configPath != "":
		viperCfg.SetConfigFile(configPath)
		if err := viperCfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

	default:
		viperCfg.SetConfigName("phasewatch")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/phasewatch")

		if err := viperCfg.ReadInConfig(); err != nil {
			var notFoundErr viper.ConfigFileNotFoundError
			if !errors.As(err, &notFoundErr) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := viperCfg.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func readEncrypted(path string) ([]byte, error) {
	key, err := KeyFromEnv()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted config: %w", err)
	}
	return Decrypt(data, key)
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("window_size", DefaultWindowSize)
	viperCfg.SetDefault("channels", DefaultChannels)
	viperCfg.SetDefault("threshold", DefaultThreshold)
	viperCfg.SetDefault("error_policy", DefaultErrorPolicy)
	viperCfg.SetDefault("workers", 0)

	viperCfg.SetDefault("server.addr", DefaultServerAddr)
	viperCfg.SetDefault("server.read_timeout", "30s")
	viperCfg.SetDefault("server.write_timeout", "30s")
	viperCfg.SetDefault("server.idle_timeout", "120s")
	viperCfg.SetDefault("server.shutdown_timeout", "30s")
	viperCfg.SetDefault("server.queue_size", 10000)

	viperCfg.SetDefault("redis.enabled", true)
	viperCfg.SetDefault("redis.addr", DefaultRedisAddr)
	viperCfg.SetDefault("redis.password", "")
	viperCfg.SetDefault("redis.db", 0)
	viperCfg.SetDefault("redis.pool_size", 50)
	viperCfg.SetDefault("redis.ttl", "5m")

	viperCfg.SetDefault("store.path", DefaultStorePath)
	viperCfg.SetDefault("store.chunk_size", DefaultChunkSize)
	viperCfg.SetDefault("store.limit", DefaultLimit)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "json")
}

func validateConfig(config *Config) error {
	if config.WindowSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidWindowSize, config.WindowSize)
	}

	if len(config.Channels) == 0 {
		return ErrNoChannels
	}

	seen := make(map[string]struct{}, len(config.Channels))
	for _, ch := range config.Channels {
		if _, dup := seen[ch]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateChannel, ch)
		}
		seen[ch] = struct{}{}
	}

	if config.Threshold <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, config.Threshold)
	}

	if config.ErrorPolicy != "fail" && config.ErrorPolicy != "skip" {
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, config.ErrorPolicy)
	}

	if config.Store.ChunkSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, config.Store.ChunkSize)
	}

	if config.Store.Limit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, config.Store.Limit)
	}

	return nil
}
