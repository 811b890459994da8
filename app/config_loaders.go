package compartment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

type ConfigLoader interface {
	Load() (*Config, error)
}

// ViperConfigLoader reads config.yaml from Paths and the environment.
type ViperConfigLoader struct {
	Paths []string
}

func (l *ViperConfigLoader) Load() (*Config, error) {
	return LoadConfig(l.Paths...)
}

// EnvConfigLoader loads the configuration from environment variables, after
// loading Files (default .env) into the environment. Missing files are skipped.
// Unset variables keep their default value.
// The ALLOWED_ORIGINS environment variable is expected to be a comma-separated list
// of origins that are allowed to connect to the server.
type EnvConfigLoader struct {
	Files []string
}

func (l *EnvConfigLoader) Load() (*Config, error) {
	files := l.Files
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	config := DefaultConfig()
	var err error
	if v, ok := getEnv("PORT"); ok {
		if config.Port, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
	}
	if v, ok := getEnv("HOST"); ok {
		config.Hostname = v
	}
	if v, ok := getEnv("LOG_LEVEL"); ok {
		config.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnv("ALLOWED_ORIGINS"); ok {
		config.AllowedOrigins = lo.Map(strings.Split(v, ","), func(o string, _ int) string {
			return strings.TrimSpace(o)
		})
	}
	if v, ok := getEnv("WS_MAX_MESSAGE_SIZE"); ok {
		if config.WS.MaxMessageSize, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("WS_MAX_MESSAGE_SIZE: %w", err)
		}
	}
	if v, ok := getEnv("WS_SEND_BUFFER"); ok {
		if config.WS.SendBuffer, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("WS_SEND_BUFFER: %w", err)
		}
	}
	if v, ok := getEnv("WS_CLOSE_TIMEOUT"); ok {
		if config.WS.CloseTimeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("WS_CLOSE_TIMEOUT: %w", err)
		}
	}
	if v, ok := getEnv("TLS_CRT"); ok {
		config.TLS.Crt = v
	}
	if v, ok := getEnv("TLS_KEY"); ok {
		config.TLS.Key = v
	}
	return config, nil
}

type DefaultConfigLoader struct {
}

func (l *DefaultConfigLoader) Load() (*Config, error) {
	return DefaultConfig(), nil
}

// getEnv returns the value of a non empty environment variable.
func getEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return "", false
	}
	return value, true
}
