// Package config resolves runtime settings from flags, environment, an
// optional .env file, the config file and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"jobfetch/internal/dirs"
	"jobfetch/internal/util"
)

const (
	EnvPrefix      = "JOBFETCH"
	DefaultServer  = "http://0.0.0.0:8000"
	DefaultEnvFile = ".env"
)

// Settings is the resolved configuration.
type Settings struct {
	Server         string        `mapstructure:"server" yaml:"server"`
	OutDir         string        `mapstructure:"out_dir" yaml:"out_dir"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxWait        time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat      string        `mapstructure:"log_format" yaml:"log_format"`
	Verbose        bool          `mapstructure:"verbose" yaml:"verbose"`
}

// flagKeys maps viper keys to the persistent flag names bound to them.
var flagKeys = map[string]string{
	"server":          "server",
	"out_dir":         "out-dir",
	"poll_interval":   "poll-interval",
	"retry_delay":     "retry-delay",
	"request_timeout": "request-timeout",
	"max_wait":        "max-wait",
	"log_level":       "log-level",
	"log_format":      "log-format",
	"verbose":         "verbose",
}

// Init wires v with config paths, env, defaults, and flag bindings. A missing
// config file or .env file is not an error; a malformed one is.
func Init(v *viper.Viper, flags *pflag.FlagSet) error {
	setDefaults(v)

	if err := loadEnvFile(envFile(flags)); err != nil {
		return err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, name := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}

	if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
	} else {
		if cfgDir, err := dirs.ConfigDir(); err == nil {
			v.AddConfigPath(cfgDir)
		}
		v.SetConfigName("config") // config.{yaml|yml|json|toml}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server", DefaultServer)
	v.SetDefault("out_dir", ".")
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("retry_delay", time.Second)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("max_wait", time.Duration(0))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("verbose", false)
}

func envFile(flags *pflag.FlagSet) string {
	if f := flags.Lookup("env-file"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	return DefaultEnvFile
}

// loadEnvFile exports JOBFETCH_* entries from path that the real environment
// does not already define.
func loadEnvFile(path string) error {
	vals, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for k, val := range vals {
		if !strings.HasPrefix(k, EnvPrefix+"_") {
			continue
		}
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return err
		}
	}
	return nil
}

// Load resolves and validates Settings from v.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	s.LogFormat = strings.ToLower(strings.TrimSpace(s.LogFormat))
	if s.Verbose {
		s.LogLevel = "debug"
	}
	if s.OutDir == "" {
		s.OutDir = "."
	}
	return s, s.Validate()
}

// Validate rejects settings the controller cannot run with.
func (s Settings) Validate() error {
	if !util.IsValidURL(s.Server) || !(strings.HasPrefix(s.Server, "http://") || strings.HasPrefix(s.Server, "https://")) {
		return fmt.Errorf("invalid server URL: %q (want http:// or https://)", s.Server)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", s.PollInterval)
	}
	if s.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be positive, got %s", s.RetryDelay)
	}
	if s.RequestTimeout < 0 || s.MaxWait < 0 {
		return errors.New("request_timeout and max_wait must not be negative")
	}
	switch s.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %q (valid: console|json)", s.LogFormat)
	}
	return nil
}

// YAML renders s the way it would appear in config.yaml.
func (s Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}
