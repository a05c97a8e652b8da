package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "FWATCH"

var (
	// ErrConfigFileNotFound is returned when the given config file does not exist.
	ErrConfigFileNotFound = errors.New("config: file not found")
	// ErrConfigParseError is returned when the config file cannot be decoded.
	ErrConfigParseError = errors.New("config: parse error")
	// ErrInvalidConfig wraps every semantic validation failure.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// newViper builds a Viper instance with YAML file type, the FWATCH_ env
// prefix and a "." to "_" key replacer, so "database.host" resolves to
// FWATCH_DATABASE_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerKeys(v)
	return v
}

// Load reads the YAML file at configPath, merges FWATCH_* overrides,
// applies defaults and validates the result. An empty configPath behaves
// like LoadFromEnv.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	v, err := readFile(configPath)
	if err != nil {
		return nil, err
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from FWATCH_* environment variables and
// defaults only.
//
//	FWATCH_<SECTION>_<FIELD>   e.g.  FWATCH_DATABASE_HOST, FWATCH_SWEEP_TIMEZONE
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func readFile(configPath string) (*viper.Viper, error) {
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
	}
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParseError, configPath, err)
	}
	return v, nil
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch re-reads configPath whenever it changes on disk and calls onChange
// with the new Config. A change that fails to parse or validate is passed
// to onError instead and the previous configuration stays in force.
// Watch does not block; viper runs the watcher on its own goroutine.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v, err := readFile(configPath)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad wraps Load and panics on error. Intended for main().
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
