package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/mmrun/internal/runner"
)

// Config represents the mmrun configuration file (~/.config/mmrun/config.yaml).
// All fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	ModelsDir string `yaml:"models_dir"`
	Seed      *int64 `yaml:"seed"`

	// Generation defaults, layered over the model card's defaults.
	MaxNewTokens *int     `yaml:"max_new_tokens"`
	SeqLen       *int     `yaml:"seq_len"`
	Temperature  *float64 `yaml:"temperature"`
	Echo         *bool    `yaml:"echo"`
	NumBOS       *int     `yaml:"num_bos"`
	NumEOS       *int     `yaml:"num_eos"`
	IgnoreEOS    *bool    `yaml:"ignore_eos"`

	// Output
	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Server
	ServerAddress string   `yaml:"server_address"`
	RateLimit     *float64 `yaml:"rate_limit"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mmrun", "config.yaml")
}

func (cfg Config) generationOptions() runner.ConfigOptions {
	return runner.ConfigOptions{
		MaxNewTokens: cfg.MaxNewTokens,
		SeqLen:       cfg.SeqLen,
		Temperature:  cfg.Temperature,
		Echo:         cfg.Echo,
		NumBOS:       cfg.NumBOS,
		NumEOS:       cfg.NumEOS,
		IgnoreEOS:    cfg.IgnoreEOS,
	}
}

// applyModelConfig applies config file defaults to the shared model flags
// when the corresponding CLI flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelsDir != "" && !c.IsSet("models-path") {
		modelsPath = cfg.ModelsDir
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, rateLimit *float64) {
	applyModelConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		*rateLimit = *cfg.RateLimit
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// seedOverride returns the --seed value when it replaces the card's seed.
func seedOverride() *int64 {
	if seed < 0 {
		return nil
	}
	return ptr(seed)
}
