package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/CTAG07/defgen/pkg/corpus"
	"github.com/CTAG07/defgen/pkg/markov"
	"github.com/natefinch/atomic"
)

// CorpusConfig holds the settings for reading the dictionary text.
type CorpusConfig struct {
	Path       string   `json:"path"`
	Encoding   string   `json:"encoding"`
	Marker     string   `json:"marker"`
	StopTokens []string `json:"stop_tokens"`
	MaxTokens  int      `json:"max_tokens"`
}

// ModelConfig holds the settings for storing trained models.
type ModelConfig struct {
	DatabasePath string `json:"database_path"`
	MatrixPath   string `json:"matrix_path"`
	DefaultModel string `json:"default_model"`
	TrainWorkers int    `json:"train_workers"`
}

// GenerateConfig holds the sampler settings.
type GenerateConfig struct {
	MaxDraws     int    `json:"max_draws"`
	MaxLength    int    `json:"max_length"`
	Strategy     string `json:"strategy"`
	Retries      int    `json:"retries"`
	Seed         uint64 `json:"seed"`
	Template     string `json:"template"`
	TemplateFile string `json:"template_file"` // overrides Template when set
}

// ServerConfig holds the settings for the HTTP API.
type ServerConfig struct {
	ApiAddr         string `json:"api_addr"`
	MaxCount        int    `json:"max_count"`
	ShutdownTimeout int    `json:"shutdown_timeout_sec"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	LogLevel string          `json:"log_level"`
	Corpus   *CorpusConfig   `json:"corpus_config"`
	Model    *ModelConfig    `json:"model_config"`
	Generate *GenerateConfig `json:"generate_config"`
	Server   *ServerConfig   `json:"server_config"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Corpus: &CorpusConfig{
			Path:       "./data/webster.txt",
			Encoding:   "latin-1",
			Marker:     corpus.DefaultMarker,
			StopTokens: []string{},
			MaxTokens:  corpus.DefaultMaxTokens,
		},
		Model: &ModelConfig{
			DatabasePath: "./data/defgen.db",
			MatrixPath:   "",
			DefaultModel: "webster",
			TrainWorkers: 1,
		},
		Generate: &GenerateConfig{
			MaxDraws:     markov.DefaultMaxDraws,
			MaxLength:    0,
			Strategy:     markov.StrategyThreshold.String(),
			Retries:      0,
			Seed:         0,
			Template:     "",
			TemplateFile: "",
		},
		Server: &ServerConfig{
			ApiAddr:         ":7280",
			MaxCount:        50,
			ShutdownTimeout: 10,
		},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The tool still works with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return config, nil
}

// Validate rejects values that would only fail later, mid-command.
func (c *Config) Validate() error {
	if c.Corpus == nil || c.Model == nil || c.Generate == nil || c.Server == nil {
		return fmt.Errorf("missing config section")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := corpus.Encoding(c.Corpus.Encoding); err != nil {
		return err
	}
	if _, err := markov.ParseStrategy(c.Generate.Strategy); err != nil {
		return err
	}
	if c.Corpus.Marker == "" {
		return fmt.Errorf("corpus marker must not be empty")
	}
	if c.Generate.MaxDraws <= 0 {
		return fmt.Errorf("max_draws must be positive, got %d", c.Generate.MaxDraws)
	}
	if c.Generate.MaxLength < 0 || c.Generate.Retries < 0 || c.Model.TrainWorkers < 0 {
		return fmt.Errorf("max_length, retries and train_workers must not be negative")
	}
	if c.Server.MaxCount <= 0 {
		return fmt.Errorf("max_count must be positive, got %d", c.Server.MaxCount)
	}
	return nil
}

// ParserOptions converts the corpus settings into parser options.
func (c *Config) ParserOptions() ([]corpus.Option, error) {
	enc, err := corpus.Encoding(c.Corpus.Encoding)
	if err != nil {
		return nil, err
	}
	return []corpus.Option{
		corpus.WithEncoding(enc),
		corpus.WithMarker(c.Corpus.Marker),
		corpus.WithStopTokens(c.Corpus.StopTokens...),
		corpus.WithMaxTokens(c.Corpus.MaxTokens),
	}, nil
}

// SampleOptions converts the generation settings into sampler options.
func (c *Config) SampleOptions() ([]markov.SampleOption, error) {
	strategy, err := markov.ParseStrategy(c.Generate.Strategy)
	if err != nil {
		return nil, err
	}
	return []markov.SampleOption{
		markov.WithMaxDraws(c.Generate.MaxDraws),
		markov.WithMaxLength(c.Generate.MaxLength),
		markov.WithStrategy(strategy),
	}, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
