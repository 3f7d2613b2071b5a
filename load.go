package cadence

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by LoadConfig,
// e.g. CADENCE_MAX_CONCURRENCY or CADENCE_TICK_INTERVAL=250ms.
const EnvPrefix = "CADENCE"

// LoadConfig reads a Config from the file at path (any format viper
// understands) layered over DefaultConfig, then applies CADENCE_*
// environment overrides. An empty path loads defaults and environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("max_concurrency", d.MaxConcurrency)
	v.SetDefault("tick_interval", d.TickInterval)
	v.SetDefault("default_max_retries", d.DefaultMaxRetries)
	v.SetDefault("retry_base_delay", d.RetryBaseDelay)
	v.SetDefault("max_retry_delay", d.MaxRetryDelay)
	v.SetDefault("gc_interval", d.GCInterval)
	v.SetDefault("retention_window", d.RetentionWindow)
	v.SetDefault("monitor_interval", d.MonitorInterval)
	v.SetDefault("event_window", d.EventWindow)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
}
