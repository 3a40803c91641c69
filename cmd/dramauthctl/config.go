package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/dramauth"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "DRAMAUTH_"
	maxConfigFileSize = 1024 * 1024
)

type appConfig struct {
	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`

	Redis struct {
		Addr      string `koanf:"addr"`
		Password  string `koanf:"password"`
		DB        int    `koanf:"db"`
		Ephemeral bool   `koanf:"ephemeral"`
	} `koanf:"redis"`

	JWT struct {
		Method         string        `koanf:"method"`
		PrivateKeyFile string        `koanf:"private_key_file"`
		PublicKeyFile  string        `koanf:"public_key_file"`
		Secret         string        `koanf:"secret"`
		Issuer         string        `koanf:"issuer"`
		AccessTTL      time.Duration `koanf:"access_ttl"`
		RefreshTTL     time.Duration `koanf:"refresh_ttl"`
	} `koanf:"jwt"`

	Mail struct {
		// Driver is "smtp" or "log".
		Driver   string `koanf:"driver"`
		Host     string `koanf:"host"`
		Port     int    `koanf:"port"`
		Username string `koanf:"username"`
		Password string `koanf:"password"`
		From     string `koanf:"from"`
		TLS      string `koanf:"tls"`
		BaseURL  string `koanf:"base_url"`
	} `koanf:"mail"`

	Sweep struct {
		Interval time.Duration `koanf:"interval"`
		Cron     string        `koanf:"cron"`
		Timeout  time.Duration `koanf:"timeout"`
	} `koanf:"sweep"`

	Metrics struct {
		Addr string `koanf:"addr"`
	} `koanf:"metrics"`

	Log struct {
		Level       string `koanf:"level"`
		Development bool   `koanf:"development"`
	} `koanf:"log"`
}

func defaultAppConfig() appConfig {
	var c appConfig
	c.JWT.Method = "ed25519"
	c.Mail.Driver = "log"
	c.Mail.BaseURL = "http://localhost:3000"
	c.Sweep.Interval = 15 * time.Minute
	c.Sweep.Timeout = time.Minute
	c.Metrics.Addr = ":9464"
	c.Log.Level = "info"
	return c
}

// loadConfig reads the optional YAML file at path and then applies
// DRAMAUTH_* environment overrides, e.g. DRAMAUTH_DATABASE_URL -> database.url.
func loadConfig(path string) (*appConfig, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := defaultAppConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps DRAMAUTH_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func (c *appConfig) validate() error {
	switch c.JWT.Method {
	case "ed25519":
		if c.JWT.PrivateKeyFile == "" || c.JWT.PublicKeyFile == "" {
			return errors.New("jwt.private_key_file and jwt.public_key_file are required for ed25519")
		}
	case "hs256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("jwt.secret must be at least 32 bytes for hs256")
		}
	default:
		return fmt.Errorf("unknown jwt.method %q", c.JWT.Method)
	}
	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.From == "" {
			return errors.New("mail.host and mail.from are required for the smtp driver")
		}
	default:
		return fmt.Errorf("unknown mail.driver %q", c.Mail.Driver)
	}
	if c.Redis.Ephemeral && c.Redis.Addr == "" {
		return errors.New("redis.ephemeral requires redis.addr")
	}
	return nil
}

// engineConfig maps the file configuration onto the engine defaults.
func (c *appConfig) engineConfig() (dramauth.Config, error) {
	cfg := dramauth.DefaultConfig()
	cfg.JWT.SigningMethod = c.JWT.Method
	if c.JWT.Issuer != "" {
		cfg.JWT.Issuer = c.JWT.Issuer
	}
	if c.JWT.AccessTTL > 0 {
		cfg.JWT.AccessTTL = c.JWT.AccessTTL
	}
	if c.JWT.RefreshTTL > 0 {
		cfg.JWT.RefreshTTL = c.JWT.RefreshTTL
	}

	switch c.JWT.Method {
	case "hs256":
		cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
	default:
		priv, err := os.ReadFile(c.JWT.PrivateKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read private key: %w", err)
		}
		pub, err := os.ReadFile(c.JWT.PublicKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read public key: %w", err)
		}
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
	}

	cfg.Store.RedisEphemeral = c.Redis.Ephemeral
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg, nil
}
