// Package config loads CLI configuration for fieldtrace.
//
// Precedence (highest to lowest): flags > env vars > config file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all CLI configuration options.
type Config struct {
	MappingsDir     string  `koanf:"mappings_dir"`
	StatePath       string  `koanf:"state_path"`
	Port            int     `koanf:"port"`
	Watch           bool    `koanf:"watch"`
	Verbose         bool    `koanf:"verbose"`
	RenameThreshold float64 `koanf:"rename_threshold"`
	MaxHops         int     `koanf:"max_hops"`
}

// Default configuration values.
const (
	DefaultMappingsDir = "mappings"
	DefaultStateFile   = ".fieldtrace/state.db"
	DefaultPort        = 8731
)

// findConfigFile finds the config file to use.
// Priority: explicit path > fieldtrace.yaml > fieldtrace.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"fieldtrace.yaml", "fieldtrace.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load loads configuration from file, environment variables, and flags.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"mappings_dir": DefaultMappingsDir,
		"state_path":   DefaultStateFile,
		"port":         DefaultPort,
		"watch":        false,
		"verbose":      false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// FIELDTRACE_MAPPINGS_DIR -> mappings_dir
	if err := k.Load(env.Provider("FIELDTRACE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "FIELDTRACE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			// --mappings-dir -> mappings_dir
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
