package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/gpuheald/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval        = 10
	defaultCooldown        = 300
	defaultActionTimeout   = 5
	defaultRestartWait     = 60
	defaultMemoryCritical  = 95.0
	defaultMemoryWarning   = 85.0
	defaultTempCritical    = 85
	defaultTempWarning     = 75
	defaultHangUtilization = 99
	defaultHangWindow      = 30
	defaultThrottleStep    = 25
	defaultThrottleClock   = 900
	defaultRetentionDays   = 30
	defaultTarget          = "ollama"
	defaultServiceURL      = "http://127.0.0.1:11434"
	defaultRuntimeBin      = "docker"
	defaultLedgerDB        = "/var/lib/gpuheald/ledger.db"
)

type Config struct {
	Interval int    `mapstructure:"interval"`
	Cooldown int    `mapstructure:"cooldown"`
	Monitor  bool   `mapstructure:"monitor"`
	LogLevel string `mapstructure:"log_level"`

	Target       string `mapstructure:"target"`
	ServiceURL   string `mapstructure:"service_url"`
	DefaultModel string `mapstructure:"default_model"`
	ContainerRef string `mapstructure:"container_ref"`
	RuntimeBin   string `mapstructure:"runtime_bin"`

	ActionTimeout int `mapstructure:"action_timeout"`
	RestartWait   int `mapstructure:"restart_wait"`

	MemoryCriticalPct float64 `mapstructure:"memory_critical_pct"`
	MemoryWarningPct  float64 `mapstructure:"memory_warning_pct"`
	TempCritical      int     `mapstructure:"temp_critical"`
	TempWarning       int     `mapstructure:"temp_warning"`
	HangUtilization   int     `mapstructure:"hang_utilization"`
	HangWindow        int     `mapstructure:"hang_window"`
	ThrottleStep      int     `mapstructure:"throttle_step"`
	ThrottleClockMHz  int     `mapstructure:"throttle_clock_mhz"`

	LedgerDB      string `mapstructure:"ledger_db"`
	RetentionDays int    `mapstructure:"retention_days"`
	MetricsListen string `mapstructure:"metrics_listen"`
}

// Load reads configuration from flags, environment and the TOML config file.
// Flags override the file, the file overrides defaults. The config file is
// /etc/gpuheald.toml unless GPUHEALD_CONFIG points elsewhere.
func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet("gpuheald", pflag.ContinueOnError)
	flags.Int("interval", defaultInterval, "Seconds between healing cycles")
	flags.Int("cooldown", defaultCooldown, "Seconds before the same action may fire again")
	flags.Bool("monitor", false, "Classify and record only, never remediate")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.String("target", defaultTarget, "Identifier of the monitored target")
	flags.String("service-url", defaultServiceURL, "Inference service base URL")
	flags.String("default-model", "", "Model reloaded after a session reset")
	flags.String("ledger-db", defaultLedgerDB, "Path to the healing ledger database")
	flags.String("metrics-listen", "", "Prometheus listen address (empty disables)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix("GPUHEALD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("GPUHEALD_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gpuheald")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
		}
	}

	// Explicitly set flags override config file values.
	flags.Visit(func(f *pflag.Flag) {
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("cooldown", defaultCooldown)
	v.SetDefault("monitor", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("target", defaultTarget)
	v.SetDefault("service_url", defaultServiceURL)
	v.SetDefault("default_model", "")
	v.SetDefault("container_ref", defaultTarget)
	v.SetDefault("runtime_bin", defaultRuntimeBin)
	v.SetDefault("action_timeout", defaultActionTimeout)
	v.SetDefault("restart_wait", defaultRestartWait)
	v.SetDefault("memory_critical_pct", defaultMemoryCritical)
	v.SetDefault("memory_warning_pct", defaultMemoryWarning)
	v.SetDefault("temp_critical", defaultTempCritical)
	v.SetDefault("temp_warning", defaultTempWarning)
	v.SetDefault("hang_utilization", defaultHangUtilization)
	v.SetDefault("hang_window", defaultHangWindow)
	v.SetDefault("throttle_step", defaultThrottleStep)
	v.SetDefault("throttle_clock_mhz", defaultThrottleClock)
	v.SetDefault("ledger_db", defaultLedgerDB)
	v.SetDefault("retention_days", defaultRetentionDays)
	v.SetDefault("metrics_listen", "")
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.Cooldown <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "cooldown must be positive").WithData(c.Cooldown)
	}
	if c.ActionTimeout <= 0 || c.ActionTimeout >= c.Interval {
		return errFactory.WithMessage(errors.ErrInvalidConfig,
			"action_timeout must be positive and shorter than interval").WithData(c.ActionTimeout)
	}
	if c.RestartWait <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "restart_wait must be positive").WithData(c.RestartWait)
	}
	if c.MemoryCriticalPct <= 0 || c.MemoryCriticalPct > 100 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "memory_critical_pct out of range").WithData(c.MemoryCriticalPct)
	}
	if c.MemoryWarningPct <= 0 || c.MemoryWarningPct > c.MemoryCriticalPct {
		return errFactory.WithMessage(errors.ErrInvalidConfig,
			"memory_warning_pct must be positive and not above memory_critical_pct").WithData(c.MemoryWarningPct)
	}
	if c.TempCritical <= 0 || c.TempWarning <= 0 || c.TempWarning > c.TempCritical {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "temperature thresholds out of order")
	}
	if c.HangUtilization <= 0 || c.HangUtilization > 100 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "hang_utilization out of range").WithData(c.HangUtilization)
	}
	if c.HangWindow <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "hang_window must be positive").WithData(c.HangWindow)
	}
	if c.LedgerDB == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "ledger_db is required")
	}
	if !isValidLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warning", "warn", "error":
		return true
	default:
		return false
	}
}
