package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pagefeedhq/pagefeed/internal/auth"
	"github.com/pagefeedhq/pagefeed/internal/database"
	"github.com/pagefeedhq/pagefeed/pkg/mail"
)

// Config represents the runtime configuration for the pagefeed backend.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Platform PlatformConfig `mapstructure:"platform"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Email    EmailConfig    `mapstructure:"email"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PlatformConfig identifies the hosted platform's own domains.
type PlatformConfig struct {
	RootDomain    string `mapstructure:"root_domain"`
	DevSlug       string `mapstructure:"dev_slug"`
	StagingSuffix string `mapstructure:"staging_suffix"`
}

// AuthConfig captures visitor authentication settings.
type AuthConfig struct {
	Session   SessionSettings   `mapstructure:"session"`
	MagicLink MagicLinkSettings `mapstructure:"magic_link"`
}

// SessionSettings configures the signed session token.
type SessionSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// MagicLinkSettings configures magic link issuance.
type MagicLinkSettings struct {
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("PAGEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate rejects configurations the server must not start with. The session
// secret in particular fails fast here instead of per request.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Session.Secret) == "" {
		return errors.New("config: auth.session.secret is required")
	}
	if strings.TrimSpace(c.Platform.RootDomain) == "" {
		return errors.New("config: platform.root_domain is required")
	}
	return nil
}

// SessionTokenConfig converts the session settings for the token service.
func (c *Config) SessionTokenConfig() auth.SessionTokenConfig {
	return auth.SessionTokenConfig{
		Secret: c.Auth.Session.Secret,
		Issuer: c.Auth.Session.Issuer,
		TTL:    c.Auth.Session.TTL,
	}
}

// DatabaseSettings converts the database section for the database package.
func (c *Config) DatabaseSettings() database.Config {
	return database.Config{
		Driver:   c.Database.Driver,
		Path:     c.Database.Path,
		DSN:      c.Database.DSN,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Name:     c.Database.Name,
		User:     c.Database.Username,
		Password: c.Database.Password,
	}
}

// SMTPSettings converts the email section for the mail package.
func (c *Config) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.Email.SMTP.Enabled,
		Host:     c.Email.SMTP.Host,
		Port:     c.Email.SMTP.Port,
		Username: c.Email.SMTP.Username,
		Password: c.Email.SMTP.Password,
		From:     c.Email.SMTP.From,
		UseTLS:   c.Email.SMTP.UseTLS,
		Timeout:  c.Email.SMTP.Timeout,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/pagefeed.sqlite")

	v.SetDefault("platform.root_domain", "pagefeed.io")
	v.SetDefault("platform.dev_slug", "demo")
	v.SetDefault("platform.staging_suffix", ".pagefeed.dev")

	v.SetDefault("auth.session.issuer", "pagefeed")
	v.SetDefault("auth.session.ttl", "720h") // 30 days
	v.SetDefault("auth.magic_link.token_ttl", "15m")
	v.SetDefault("auth.magic_link.cooldown", "1m")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
