package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-grader/assessment/config"
	"github.com/RyanBlaney/sonido-grader/logging"
	"github.com/RyanBlaney/sonido-grader/transcode"
)

// Config holds the full grading service configuration
type Config struct {
	Listen            string        `yaml:"listen"`
	DBPath            string        `yaml:"db_path"` // empty disables persistence
	LogLevel          string        `yaml:"log_level"`
	MaxUploadMB       int           `yaml:"max_upload_mb"`
	AnalysisTimeout   time.Duration `yaml:"analysis_timeout"`
	StoreTimeout      time.Duration `yaml:"store_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	DefaultVoiceRange config.VoiceRange          `yaml:"default_voice_range"`
	VoiceRanges       []config.VoiceRangeProfile `yaml:"voice_ranges"` // merged over the built-in profiles

	Assessment config.AssessmentConfig `yaml:"assessment"`
	Decoder    transcode.DecoderConfig `yaml:"decoder"`
}

// DefaultConfig returns sane defaults
func DefaultConfig() *Config {
	return &Config{
		Listen:            ":8000",
		DBPath:            "data/pitch_results.db",
		LogLevel:          "info",
		MaxUploadMB:       25,
		AnalysisTimeout:   60 * time.Second,
		StoreTimeout:      10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		DefaultVoiceRange: config.DefaultVoiceRange,
		Assessment:        *config.DefaultAssessmentConfig(),
		Decoder:           *transcode.DefaultDecoderConfig(),
	}
}

// LoadConfig reads a YAML config file. Values in the file override DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("analysis_timeout must be > 0")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store_timeout must be > 0")
	}
	if c.Decoder.Timeout <= 0 {
		return fmt.Errorf("decoder.timeout must be > 0")
	}
	if err := c.Assessment.Validate(); err != nil {
		return fmt.Errorf("assessment: %w", err)
	}
	if _, err := c.ProfileTable(); err != nil {
		return err
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// ProfileTable builds the voice range table: built-in profiles first, then the
// configured ones, which replace built-ins with the same id.
func (c *Config) ProfileTable() (*config.ProfileTable, error) {
	profiles := config.BuiltinProfiles()
	for i := range c.VoiceRanges {
		p := c.VoiceRanges[i]
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("voice_ranges[%d]: %w", i, err)
		}
		profiles = append(profiles, &p)
	}

	defaultID := c.DefaultVoiceRange
	if defaultID == "" {
		defaultID = config.DefaultVoiceRange
	}
	return config.NewProfileTable(defaultID, profiles...)
}
