package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// LoadWithFlags is Load with command line flags layered on top. bindings
// maps config keys below the root (e.g. "capture.device") to flag names;
// a flag only takes effect when it was set on the command line.
func LoadWithFlags(path string, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("unknown flag %q bound to %s", name, key)
		}
		if err := v.BindPFlag("analyzer."+key, f); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return decode(v)
}

// Marshal renders cfg as YAML under the analyzer root key.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(configRoot{Analyzer: *cfg})
}
