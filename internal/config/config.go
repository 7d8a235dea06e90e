package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// DefaultTags is the vocabulary the tag pool starts from.
var DefaultTags = []string{
	"horror",
	"fantasy",
	"water",
	"smoke",
	"black and white",
	"history",
	"fire",
	"pattern",
	"sky",
	"scary",
}

// Config contains the program configuration
type Config struct {
	Band  string `yaml:"-"`
	Album string `yaml:"-"`

	FlickrAPIKey         string `yaml:"flickr_api_key"`
	FlickrAPISecret      string `yaml:"flickr_api_secret"`
	ClarifaiClientID     string `yaml:"clarifai_client_id"`
	ClarifaiClientSecret string `yaml:"clarifai_client_secret"`

	FontsDir            string        `yaml:"fonts_dir"`
	Tags                []string      `yaml:"tags"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	MaxAttempts         int           `yaml:"max_attempts"`
	ExcludeRejectedTags bool          `yaml:"exclude_rejected_tags"`
	ImageSize           int           `yaml:"image_size"`
	TextColor           string        `yaml:"text_color"`
	Seed                uint64        `yaml:"seed"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`

	Verbose bool   `yaml:"verbose"`
	Output  string `yaml:"output"`
	NoShow  bool   `yaml:"no_show"`
	Embed   string `yaml:"embed"`

	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds settings for the cover job server.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      float64       `yaml:"rate_limit"` // cover requests per second
	RateBurst      int           `yaml:"rate_burst"`
	JobRetention   time.Duration `yaml:"job_retention"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		FontsDir:            "./fonts",
		Tags:                append([]string(nil), DefaultTags...),
		ConfidenceThreshold: 0.8,
		MaxAttempts:         10,
		ImageSize:           500,
		TextColor:           "#ffffff",
		RequestTimeout:      30 * time.Second,
		Server: ServerConfig{
			Addr:         ":8080",
			RateLimit:    0.5,
			RateBurst:    2,
			JobRetention: time.Hour,
		},
	}
}

// LoadConfigFile loads configuration from a YAML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
// Credentials from the environment always win over the file.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.FontsDir = ExpandHome(cfg.FontsDir)
	cfg.Output = ExpandHome(cfg.Output)
	cfg.Embed = ExpandHome(cfg.Embed)
	cfg.ApplyEnv()

	return cfg, nil
}

// ApplyEnv overrides service credentials with FLICKR_API_KEY, FLICKR_API_SECRET,
// CLARIFAI_CLIENT_ID and CLARIFAI_CLIENT_SECRET when they are set.
func (c *Config) ApplyEnv() {
	for env, dst := range map[string]*string{
		"FLICKR_API_KEY":         &c.FlickrAPIKey,
		"FLICKR_API_SECRET":      &c.FlickrAPISecret,
		"CLARIFAI_CLIENT_ID":     &c.ClarifaiClientID,
		"CLARIFAI_CLIENT_SECRET": &c.ClarifaiClientSecret,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./doomcover.yaml",
		"./doomcover.yml",
		filepath.Join(home, ".config", "doomcover", "config.yaml"),
		filepath.Join(home, ".config", "doomcover", "config.yml"),
		filepath.Join(home, ".doomcover.yaml"),
		filepath.Join(home, ".doomcover.yml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the current configuration to a YAML file
func SaveConfigFile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Credentials live in this file.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "doomcover", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "doomcover", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// ValidateServices checks the settings every cover generation needs,
// whether it is started from the CLI or the job server.
func (c *Config) ValidateServices() error {
	if c.FlickrAPIKey == "" || c.FlickrAPISecret == "" {
		return invalid("flickr_api_key and flickr_api_secret are required")
	}
	if c.ClarifaiClientID == "" || c.ClarifaiClientSecret == "" {
		return invalid("clarifai_client_id and clarifai_client_secret are required")
	}
	if c.FontsDir == "" {
		return invalid("fonts_dir cannot be empty")
	}
	if len(c.Tags) == 0 {
		return invalid("tags cannot be empty")
	}
	for _, t := range c.Tags {
		if strings.TrimSpace(t) == "" {
			return invalid("tags cannot contain blank entries")
		}
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold >= 1 {
		return invalid("confidence_threshold must be in (0.0, 1.0), got %.2f", c.ConfidenceThreshold)
	}
	if c.MaxAttempts < 1 {
		return invalid("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.ImageSize < 1 || c.ImageSize > 4096 {
		return invalid("image_size must be between 1 and 4096, got %d", c.ImageSize)
	}
	if _, err := ParseColor(c.TextColor); err != nil {
		return invalid("text_color: %v", err)
	}
	if c.RequestTimeout < 0 {
		return invalid("request_timeout cannot be negative")
	}
	return nil
}

// Validate checks if the configuration is valid for a CLI run
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Band) == "" {
		return invalid("band name cannot be empty")
	}
	if strings.TrimSpace(c.Album) == "" {
		return invalid("album name cannot be empty")
	}
	if err := c.ValidateServices(); err != nil {
		return err
	}
	if c.NoShow && c.Output == "" && c.Embed == "" {
		return invalid("--no-show needs --output or --embed, otherwise the cover is discarded")
	}
	return nil
}

// ValidateServer checks the job server settings.
func (c *Config) ValidateServer() error {
	if err := c.ValidateServices(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return invalid("server.addr cannot be empty")
	}
	if c.Server.RateLimit <= 0 {
		return invalid("server.rate_limit must be positive, got %.2f", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 1 {
		return invalid("server.rate_burst must be at least 1, got %d", c.Server.RateBurst)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
