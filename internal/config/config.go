// Package config handles configuration loading for LunarDB.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for LunarDB.
type Config struct {
	Data DataConfig `mapstructure:"data"`
	Exec ExecConfig `mapstructure:"exec"`
	Log  LogConfig  `mapstructure:"log"`
}

// DataConfig locates the dataset snapshots the catalog loads on startup.
type DataConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"` // parquet or json
}

// ExecConfig holds query execution settings.
type ExecConfig struct {
	MaxRecursion int  `mapstructure:"max_recursion"`
	HashJoin     bool `mapstructure:"hash_join"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func defaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:    "./data",
			Format: "parquet",
		},
		Exec: ExecConfig{
			MaxRecursion: 1000,
			HashJoin:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads configuration from an optional file and LUNARDB_* environment
// variables, falling back to defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("data.dir", cfg.Data.Dir)
	v.SetDefault("data.format", cfg.Data.Format)
	v.SetDefault("exec.max_recursion", cfg.Exec.MaxRecursion)
	v.SetDefault("exec.hash_join", cfg.Exec.HashJoin)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)

	v.SetEnvPrefix("LUNARDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Exec.MaxRecursion <= 0 {
		return fmt.Errorf("exec.max_recursion must be positive, got %d", c.Exec.MaxRecursion)
	}
	switch strings.ToLower(c.Data.Format) {
	case "parquet", "json":
	default:
		return fmt.Errorf("unsupported data format: %s", c.Data.Format)
	}
	return nil
}

// EnsureDataDir creates the data directory when it does not exist yet.
func EnsureDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
