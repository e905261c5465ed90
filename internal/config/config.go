// Package config loads and validates archive bot configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	IRC     IRCConfig     `mapstructure:"irc"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// IRCConfig describes the chat server connection.
type IRCConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	TLS            bool          `mapstructure:"tls"`
	Nick           string        `mapstructure:"nick"`
	RealName       string        `mapstructure:"realname"`
	Channels       []string      `mapstructure:"channels"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	SendRate       float64       `mapstructure:"send_rate"`
	SendBurst      int           `mapstructure:"send_burst"`
}

// WorkerConfig controls how crawl workers are launched.
type WorkerConfig struct {
	Command       []string `mapstructure:"command"`
	TempDir       string   `mapstructure:"tempdir"`
	DestDir       string   `mapstructure:"destdir"`
	MaxConcurrent int      `mapstructure:"max_concurrent"`
}

// HTTPConfig controls the health and metrics listener.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// NotifyConfig selects the Pub/Sub topic for job notifications. Leaving
// either field empty keeps notifications in process.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether a Pub/Sub topic is configured.
func (n NotifyConfig) Enabled() bool {
	return n.ProjectID != "" && n.Topic != ""
}

// Upload backends.
const (
	UploadNone  = "none"
	UploadGCS   = "gcs"
	UploadLocal = "local"
)

// UploadConfig controls shipping of finished archives out of worker.destdir.
type UploadConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Dir     string `mapstructure:"dir"`
	Prefix  string `mapstructure:"prefix"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Flag names bound onto configuration keys.
var flagKeys = map[string]string{
	"nick":        "irc.nick",
	"channel":     "irc.channels",
	"max-workers": "worker.max_concurrent",
}

// Load builds a Config from defaults, an optional file, the environment and
// any bound command line flags. With an empty path, "archivebot.yaml" is
// looked up in the working directory, /etc/archivebot and ~/.archivebot.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("archivebot")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/archivebot/")
		v.AddConfigPath("$HOME/.archivebot")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if err := cfg.resolvePaths(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// resolvePaths makes every configured directory absolute against the working
// directory of the bot.
func (c *Config) resolvePaths() error {
	for key, dir := range map[string]*string{
		"worker.tempdir": &c.Worker.TempDir,
		"worker.destdir": &c.Worker.DestDir,
		"upload.dir":     &c.Upload.Dir,
	} {
		if *dir == "" {
			continue
		}
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		*dir = abs
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("irc.port", 6667)
	v.SetDefault("irc.tls", false)
	v.SetDefault("irc.nick", "archivebot")
	v.SetDefault("irc.realname", "https://github.com/JakeFAU/archivebot")
	v.SetDefault("irc.channels", []string{})
	v.SetDefault("irc.reconnect_delay", "10s")
	v.SetDefault("irc.dial_timeout", "30s")
	v.SetDefault("irc.send_rate", 1.0)
	v.SetDefault("irc.send_burst", 5)
	v.SetDefault("worker.command", []string{"crocoite-recursive"})
	v.SetDefault("worker.tempdir", os.TempDir())
	v.SetDefault("worker.destdir", ".")
	v.SetDefault("worker.max_concurrent", 1)
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("upload.backend", UploadNone)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "archivebot")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.IRC.Host == "" {
		return fmt.Errorf("irc.host must be set")
	}
	if c.IRC.Port <= 0 || c.IRC.Port > 65535 {
		return fmt.Errorf("irc.port must be in (0,65535]")
	}
	if c.IRC.Nick == "" || strings.ContainsAny(c.IRC.Nick, " ,*?!@") {
		return fmt.Errorf("irc.nick %q is not a valid nick", c.IRC.Nick)
	}
	if len(c.IRC.Channels) == 0 {
		return fmt.Errorf("irc.channels must list at least one channel")
	}
	for _, ch := range c.IRC.Channels {
		if ch == "" || !strings.ContainsRune("#&+!", rune(ch[0])) {
			return fmt.Errorf("irc.channels: %q is not a channel name", ch)
		}
	}
	if c.IRC.ReconnectDelay <= 0 {
		return fmt.Errorf("irc.reconnect_delay must be > 0")
	}
	if c.IRC.SendRate < 0 {
		return fmt.Errorf("irc.send_rate must be >= 0")
	}
	if len(c.Worker.Command) == 0 || c.Worker.Command[0] == "" {
		return fmt.Errorf("worker.command must name an executable")
	}
	if c.Worker.MaxConcurrent <= 0 {
		return fmt.Errorf("worker.max_concurrent must be > 0")
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must be set when http is enabled")
	}
	if (c.Notify.ProjectID == "") != (c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic must be set together")
	}
	switch c.Upload.Backend {
	case "", UploadNone:
	case UploadGCS:
		if c.Upload.Bucket == "" {
			return fmt.Errorf("upload.bucket must be set for the gcs backend")
		}
	case UploadLocal:
		if c.Upload.Dir == "" {
			return fmt.Errorf("upload.dir must be set for the local backend")
		}
	default:
		return fmt.Errorf("upload.backend %q is not one of none, gcs, local", c.Upload.Backend)
	}
	return nil
}
