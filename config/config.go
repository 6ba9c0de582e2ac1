package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Allowlist  AllowlistConfig  `yaml:"allowlist"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Whois      WhoisConfig      `yaml:"whois"`
	Content    ContentConfig    `yaml:"content"`
	Rank       RankConfig       `yaml:"rank"`
	Explain    ExplainConfig    `yaml:"explain"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type AllowlistConfig struct {
	Path string `yaml:"path"`
}

type ClassifierConfig struct {
	Kind    string        `yaml:"kind"` // artifact | remote
	Path    string        `yaml:"path"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WhoisConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	PerSecond float64       `yaml:"per_second"`
	Burst     int           `yaml:"burst"`
}

type ContentConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxRedirects int           `yaml:"max_redirects"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	UserAgent    string        `yaml:"user_agent"`
}

type RankConfig struct {
	Source     string        `yaml:"source"` // tranco | page | none
	TrancoFile string        `yaml:"tranco_file"`
	TopN       int           `yaml:"top_n"`
	PageURL    string        `yaml:"page_url"`
	Selector   string        `yaml:"selector"`
	Timeout    time.Duration `yaml:"timeout"`
	Threshold  int           `yaml:"threshold"`
}

// ExplainConfig enables Gemini explanations when APIKey is set.
type ExplainConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

const (
	ClassifierArtifact = "artifact"
	ClassifierRemote   = "remote"

	RankTranco = "tranco"
	RankPage   = "page"
	RankNone   = "none"
)

// Default returns the settings used when no config file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Allowlist: AllowlistConfig{Path: "data/allowlist.csv"},
		Classifier: ClassifierConfig{
			Kind:    ClassifierArtifact,
			Path:    "data/model.json",
			Timeout: 5 * time.Second,
		},
		Whois: WhoisConfig{
			Timeout:   10 * time.Second,
			PerSecond: 5,
			Burst:     5,
		},
		Content: ContentConfig{
			Timeout:      10 * time.Second,
			MaxRedirects: 30,
			MaxBodyBytes: 10 * 1024 * 1024,
			UserAgent:    "Mozilla/5.0 (compatible; PhishLens/1.0)",
		},
		Rank: RankConfig{
			Source:    RankNone,
			Selector:  "div.rankmini-rank",
			Timeout:   8 * time.Second,
			Threshold: 100000,
		},
		Explain: ExplainConfig{
			Model:   "gemini-2.5-flash",
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides (a .env file in the working directory is honored).
// A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("[CONFIG] %s not found, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.APIKey, "PHISHLENS_API_KEY")
	setString(&c.Allowlist.Path, "PHISHLENS_ALLOWLIST")
	setString(&c.Classifier.Path, "PHISHLENS_MODEL")
	setString(&c.Explain.APIKey, "GEMINI_API_KEY")
	if v := os.Getenv("PHISHLENS_MODEL_URL"); v != "" {
		c.Classifier.URL = v
		c.Classifier.Kind = ClassifierRemote
	}
	if v := os.Getenv("PHISHLENS_TRANCO_FILE"); v != "" {
		c.Rank.TrancoFile = v
		c.Rank.Source = RankTranco
	}
	if v := os.Getenv("PHISHLENS_RANK_URL"); v != "" {
		c.Rank.PageURL = v
		c.Rank.Source = RankPage
	}
	if v := os.Getenv("PHISHLENS_WHOIS_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Whois.PerSecond = f
		} else {
			log.Printf("[CONFIG] Ignoring PHISHLENS_WHOIS_RATE=%q: %v", v, err)
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Allowlist.Path == "" {
		return errors.New("allowlist.path is required")
	}
	for name, d := range map[string]time.Duration{
		"classifier.timeout": c.Classifier.Timeout,
		"whois.timeout":      c.Whois.Timeout,
		"content.timeout":    c.Content.Timeout,
		"rank.timeout":       c.Rank.Timeout,
		"explain.timeout":    c.Explain.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	switch c.Classifier.Kind {
	case ClassifierArtifact:
		if c.Classifier.Path == "" {
			return errors.New("classifier.path is required for artifact classifier")
		}
	case ClassifierRemote:
		if c.Classifier.URL == "" {
			return errors.New("classifier.url is required for remote classifier")
		}
	default:
		return fmt.Errorf("unknown classifier.kind %q", c.Classifier.Kind)
	}

	switch c.Rank.Source {
	case RankNone:
	case RankTranco:
		if c.Rank.TrancoFile == "" {
			return errors.New("rank.tranco_file is required for tranco source")
		}
	case RankPage:
		if c.Rank.PageURL == "" || c.Rank.Selector == "" {
			return errors.New("rank.page_url and rank.selector are required for page source")
		}
	default:
		return fmt.Errorf("unknown rank.source %q", c.Rank.Source)
	}

	if c.Rank.Threshold <= 0 {
		return fmt.Errorf("rank.threshold must be positive, got %d", c.Rank.Threshold)
	}
	return nil
}
