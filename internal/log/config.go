package log

const (
	DefaultPattern    = "%time [%level] %field %msg\n"
	DefaultTimeLayout = "2006-01-02 15:04:05.000"
)

type Config struct {
	Level   string        `mapstructure:"level" yaml:"level"`
	Pattern string        `mapstructure:"pattern" yaml:"pattern"`
	Time    string        `mapstructure:"time" yaml:"time"`
	Outputs OutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

type OutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig enables a size-rotated log file next to console output.
type FileOutputConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}
