package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string       `mapstructure:"log_level"`
	LogFormat string       `mapstructure:"log_format"`
	DataDir   string       `mapstructure:"data_dir"`
	ConfigDir string       `mapstructure:"config_dir"`
	Vault     VaultConfig  `mapstructure:"vault"`
	Keying    KeyingConfig `mapstructure:"keying"`
	Anonymize RunConfig    `mapstructure:"anonymize"`
}

// VaultConfig contains mapping-vault storage configuration
type VaultConfig struct {
	Path           string `mapstructure:"path"`
	KeyFile        string `mapstructure:"key_file"`
	PBKDF2Iters    int    `mapstructure:"pbkdf2_iterations"`
	SaltLength     int    `mapstructure:"salt_length"`
	CommitBatching bool   `mapstructure:"commit_batching"`
}

// KeyingConfig contains seed/master-key sourcing configuration
type KeyingConfig struct {
	SeedFile     string `mapstructure:"seed_file"`
	PBKDF2Iters  int    `mapstructure:"pbkdf2_iterations"`
	ExportedSeed string `mapstructure:"exported_seed_file"`
}

// RunConfig contains defaults for a single anonymization run
type RunConfig struct {
	Mode              string   `mapstructure:"mode"`
	Strict            bool     `mapstructure:"strict"`
	PreserveDomains   bool     `mapstructure:"preserve_domains"`
	SampleSize        int      `mapstructure:"sample_size"`
	Profile           string   `mapstructure:"profile"`
	ExcludedColumns   []string `mapstructure:"excluded_columns"`
	MaxCollisionRetry int      `mapstructure:"max_collision_retry"`
}

var globalConfig *Config

// Init initializes the configuration system
func Init() error {
	setDefaults()

	viper.SetConfigName(".anonycore")
	viper.SetConfigType("yaml")

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	viper.AddConfigPath(home)
	viper.AddConfigPath("/etc/anonycore/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("ANONYCORE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	globalConfig = &cfg
	return nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		panic("configuration not initialized")
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".anonycore")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("data_dir", dataDir)
	viper.SetDefault("config_dir", dataDir)

	viper.SetDefault("vault.path", filepath.Join(dataDir, "vault.anov1"))
	viper.SetDefault("vault.key_file", filepath.Join(dataDir, "vault-key.json"))
	viper.SetDefault("vault.pbkdf2_iterations", 200000)
	viper.SetDefault("vault.salt_length", 16)
	viper.SetDefault("vault.commit_batching", true)

	viper.SetDefault("keying.seed_file", filepath.Join(dataDir, "seed.json"))
	viper.SetDefault("keying.pbkdf2_iterations", 200000)
	viper.SetDefault("keying.exported_seed_file", filepath.Join(dataDir, "exported-seed.json"))

	viper.SetDefault("anonymize.mode", "hybrid")
	viper.SetDefault("anonymize.strict", true)
	viper.SetDefault("anonymize.preserve_domains", true)
	viper.SetDefault("anonymize.sample_size", 1000)
	viper.SetDefault("anonymize.profile", "default")
	viper.SetDefault("anonymize.excluded_columns", []string{})
	viper.SetDefault("anonymize.max_collision_retry", 8)
}

// ensureDirectories creates necessary directories
func ensureDirectories(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ConfigDir,
		filepath.Dir(cfg.Vault.Path),
		filepath.Dir(cfg.Keying.SeedFile),
	}

	for _, dir := range dirs {
		if dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// WriteConfig writes the current configuration to file
func WriteConfig() error {
	return viper.WriteConfig()
}

// WriteConfigAs writes the current configuration to a specific file
func WriteConfigAs(filename string) error {
	return viper.WriteConfigAs(filename)
}
