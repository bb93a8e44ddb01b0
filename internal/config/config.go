// Package config loads the TOML configuration of the xapi command.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bruth/xapi"
	"github.com/bruth/xapi/codec"
)

type Config struct {
	// Endpoint is the base URL of the record store.
	Endpoint string            `toml:"endpoint"`
	Version  string            `toml:"version"`
	Username string            `toml:"username"`
	Password string            `toml:"password"`
	Headers  map[string]string `toml:"headers"`

	Logging LoggingConfig `toml:"logging"`
	Store   StoreConfig   `toml:"store"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// StoreConfig locates the NATS backed statement store.
type StoreConfig struct {
	URL   string `toml:"url"`
	Name  string `toml:"name"`
	Codec string `toml:"codec"`
}

func Default() Config {
	return Config{
		Version: string(xapi.LatestVersion),
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			URL:   "nats://127.0.0.1:4222",
			Name:  "statements",
			Codec: codec.Default.Name(),
		},
	}
}

// Load reads path over defaults. A missing or empty file yields the
// defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid endpoint: %q", c.Endpoint)
		}
	}
	if _, err := xapi.ParseVersion(c.Version); err != nil {
		return fmt.Errorf("invalid version: %w", err)
	}
	if c.Password != "" && c.Username == "" {
		return errors.New("password set without username")
	}
	if _, err := codec.Get(c.Store.Codec); err != nil {
		return fmt.Errorf("invalid store.codec: %w", err)
	}
	if strings.TrimSpace(c.Store.Name) == "" {
		return errors.New("store.name is required")
	}
	return nil
}

// Options returns the client options the configuration describes.
func (c Config) Options() []xapi.Option {
	opts := []xapi.Option{
		xapi.WithVersion(xapi.Version(c.Version)),
	}
	if c.Username != "" {
		opts = append(opts, xapi.WithBasicAuth(c.Username, c.Password))
	}
	if len(c.Headers) > 0 {
		h := make(http.Header, len(c.Headers))
		for k, v := range c.Headers {
			h.Set(k, v)
		}
		opts = append(opts, xapi.WithHeaders(h))
	}
	return opts
}
