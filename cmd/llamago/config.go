package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/llamago/internal/engine"
)

const envConfig = "LLAMAGO_CONFIG"

// Config represents the llamago configuration file
// (~/.config/llamago/config.yaml, .toml or .json).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Variant  string `yaml:"variant" toml:"variant" json:"variant"`
	CacheDir string `yaml:"cache_dir" toml:"cache_dir" json:"cache_dir"`

	// Sampling defaults
	Temperature  *float64 `yaml:"temperature" toml:"temperature" json:"temperature"`
	TopP         *float64 `yaml:"top_p" toml:"top_p" json:"top_p"`
	MaxContext   *int     `yaml:"max_seq_len" toml:"max_seq_len" json:"max_seq_len"`
	MaxNewTokens *int     `yaml:"sample_len" toml:"sample_len" json:"sample_len"`
	Seed         *uint64  `yaml:"seed" toml:"seed" json:"seed"`
	Chat         *bool    `yaml:"chat" toml:"chat" json:"chat"`

	// Output
	LogLevel  string `yaml:"log_level" toml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format" json:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address" toml:"server_address" json:"server_address"`
	IdleTTL       string `yaml:"idle_ttl" toml:"idle_ttl" json:"idle_ttl"`
}

var configNames = []string{"config.yaml", "config.yml", "config.toml", "config.json"}

// defaultConfigPath returns the first config file present under the user
// config dir, or "".
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	for _, name := range configNames {
		p := filepath.Join(dir, "llamago", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadConfig reads path, or the default location when path is empty.
// A missing default file yields a zero Config; a missing explicit file is an
// error.
func loadConfig(path string) (Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	cfg, err := parseConfig(path, data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(path string, data []byte) (Config, error) {
	var cfg Config
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyVariantConfig(c *cli.Command, cfg Config) {
	if cfg.Variant != "" && !c.IsSet("variant") {
		variantName = cfg.Variant
	}
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		cacheDir = cfg.CacheDir
	}
}

// applyRunConfig applies config file defaults to req when the corresponding
// flag was not explicitly set.
func applyRunConfig(c *cli.Command, cfg Config, req *engine.Request) {
	applyVariantConfig(c, cfg)
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		req.Temperature = *cfg.Temperature
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		req.TopP = *cfg.TopP
	}
	if cfg.MaxContext != nil && !c.IsSet("max-seq-len") {
		req.MaxContext = *cfg.MaxContext
	}
	if cfg.MaxNewTokens != nil && !c.IsSet("sample-len") {
		req.MaxNewTokens = *cfg.MaxNewTokens
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		req.Seed = *cfg.Seed
	}
	if cfg.Chat != nil && !c.IsSet("chat") {
		req.Chat = *cfg.Chat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, req *engine.Request, addr *string, idleTTL *time.Duration) error {
	applyRunConfig(c, cfg, req)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.IdleTTL != "" && !c.IsSet("idle-ttl") {
		d, err := time.ParseDuration(cfg.IdleTTL)
		if err != nil {
			return fmt.Errorf("idle_ttl: %w", err)
		}
		*idleTTL = d
	}
	return nil
}
