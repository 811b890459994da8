package compartment

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	// Port is the Port number to listen on. The default is 8080.
	Port int `validate:"required,port" default:"8080"`
	// Hostname is the Hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required" default:"0.0.0.0"`
	Log      struct {
		// Level is one of debug, info, warn or error. The default is info.
		Level string `validate:"required,oneof=debug info warn error" default:"info"`
	}
	// AllowedOrigins is a list of origins that are allowed to connect to the server.
	// The default is ["*"].
	AllowedOrigins []string `validate:"required,dive,origin"`
	WS             struct {
		// MaxMessageSize is the largest frame in bytes a client may send.
		MaxMessageSize int64 `validate:"gt=0" default:"8192"`
		// SendBuffer is the number of events queued per connection before
		// further events for it are dropped.
		SendBuffer int `validate:"gt=0" default:"64"`
		// CloseTimeout bounds how long shutdown waits for connections to close.
		CloseTimeout time.Duration `validate:"gt=0" default:"10s"`
	}
	TLS struct {
		Crt string `validate:"required_with=Key"`
		Key string `validate:"required_with=Crt"`
	}
	valid bool
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	c := &Config{
		Port:           8080,
		Hostname:       "0.0.0.0",
		AllowedOrigins: []string{"*"},
	}
	c.Log.Level = "info"
	c.WS.MaxMessageSize = 8192
	c.WS.SendBuffer = 64
	c.WS.CloseTimeout = 10 * time.Second
	return c
}

// LoadConfig loads the configuration from config.yaml in the given directories
// (the working directory when none is given) and from environment variables,
// e.g. WS_SENDBUFFER. A missing config file is not an error.
// Any invalid configuration will not be loaded, and the error wil be cought in the validation step.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("port", defaults.Port)
	v.SetDefault("hostname", defaults.Hostname)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("allowedorigins", defaults.AllowedOrigins)
	v.SetDefault("ws.maxmessagesize", defaults.WS.MaxMessageSize)
	v.SetDefault("ws.sendbuffer", defaults.WS.SendBuffer)
	v.SetDefault("ws.closetimeout", defaults.WS.CloseTimeout)
	v.SetDefault("tls.crt", "")
	v.SetDefault("tls.key", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	c.valid = true
	return nil
}

// LogLevel returns the slog level named by Log.Level.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}

func FormatValidationErrors(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errs.Translate(trans)

	var sb strings.Builder
	for v := range maps.Values(translated) {
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}
