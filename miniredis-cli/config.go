// =============================================================================
// config.go - Layered CLI Configuration
// =============================================================================
//
// Settings are merged from four layers, later ones winning:
//   1. built-in defaults
//   2. a YAML file (--config or MINIREDIS_CONFIG)
//   3. MINIREDIS_* environment variables (a .env file is loaded first)
//   4. command-line flags that were set explicitly
//
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

const envPrefix = "MINIREDIS_"

// cliConfig is the merged configuration.
type cliConfig struct {
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Timeout  time.Duration `koanf:"timeout"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Name     string        `koanf:"name"`
	LogLevel string        `koanf:"log_level"`
	Raw      bool          `koanf:"raw"`
	Launch   bool          `koanf:"launch"`
}

// flagKeys maps global flag names to configuration keys.
var flagKeys = map[string]string{
	"host":      "host",
	"port":      "port",
	"timeout":   "timeout",
	"user":      "username",
	"password":  "password",
	"db":        "db",
	"name":      "name",
	"log-level": "log_level",
	"raw":       "raw",
	"launch":    "launch",
}

var errInvalidPort = errors.New("port must be between 1 and 65535")

// mapProvider feeds a plain map into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

func defaultSettings() map[string]any {
	return map[string]any{
		"host":      miniredis.DefaultHost,
		"port":      int(miniredis.DefaultPort),
		"timeout":   miniredis.DefaultTimeout,
		"db":        0,
		"name":      defaultClientName(),
		"log_level": "warn",
		"raw":       false,
		"launch":    false,
	}
}

// defaultClientName returns a connection name unique to this process.
func defaultClientName() string {
	return "miniredis-" + strings.ToLower(ulid.Make().String())
}

// loadConfig merges every configuration layer for the invocation in c.
func loadConfig(c *cli.Context) (cliConfig, error) {
	k := koanf.New(".")
	if err := k.Load(mapProvider(defaultSettings()), nil); err != nil {
		return cliConfig{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := c.String("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cliConfig{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// MINIREDIS_LOG_LEVEL -> log_level
	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}
	if err := k.Load(env.Provider(envPrefix, ".", transform), nil); err != nil {
		return cliConfig{}, fmt.Errorf("load env: %w", err)
	}

	flags := make(map[string]any)
	for name, key := range flagKeys {
		if c.IsSet(name) {
			flags[key] = c.Value(name)
		}
	}
	if err := k.Load(mapProvider(flags), nil); err != nil {
		return cliConfig{}, fmt.Errorf("load flags: %w", err)
	}

	var cfg cliConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func (c cliConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", errInvalidPort, c.Port)
	}
	if c.DB < 0 {
		return fmt.Errorf("db must not be negative: %d", c.DB)
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// clientConfig converts to the library's connection settings.
func (c cliConfig) clientConfig() miniredis.Config {
	return miniredis.Config{
		Host:       c.Host,
		Port:       uint16(c.Port),
		Timeout:    c.Timeout,
		Username:   c.Username,
		Password:   c.Password,
		DB:         c.DB,
		ClientName: c.Name,
	}
}

func (c cliConfig) addr() string {
	return c.clientConfig().Addr()
}

func (c cliConfig) logger(w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   appName,
		Level:  hclog.LevelFromString(c.LogLevel),
		Output: w,
	})
}
