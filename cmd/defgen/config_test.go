package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defgen.json")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if config.Model.DefaultModel != "webster" || config.Generate.Strategy != "threshold" {
		t.Errorf("got unexpected defaults: %+v %+v", config.Model, config.Generate)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config was not written: %v", err)
	}
	var written Config
	if err = json.Unmarshal(data, &written); err != nil {
		t.Fatalf("default config is not valid JSON: %v", err)
	}
	if written.Corpus.Marker != "Defn:" {
		t.Errorf("written marker = %q", written.Corpus.Marker)
	}
}

func TestLoadConfigOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defgen.json")
	content := `{"log_level":"debug","generate_config":{"max_draws":50,"strategy":"cumulative","retries":3}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if config.LogLevel != "debug" || config.Generate.MaxDraws != 50 || config.Generate.Retries != 3 {
		t.Errorf("file values were not applied: %+v", config.Generate)
	}
	// Sections missing from the file keep their defaults.
	if config.Corpus == nil || config.Corpus.Marker != "Defn:" {
		t.Errorf("corpus defaults lost: %+v", config.Corpus)
	}
	if config.Server.MaxCount != 50 {
		t.Errorf("MaxCount = %d, want the default 50", config.Server.MaxCount)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	testCases := map[string]string{
		"bad json":      `{`,
		"bad strategy":  `{"generate_config":{"strategy":"softmax","max_draws":1}}`,
		"bad level":     `{"log_level":"loud"}`,
		"bad encoding":  `{"corpus_config":{"encoding":"ebcdic","marker":"Defn:"}}`,
		"zero draws":    `{"generate_config":{"max_draws":0,"strategy":"threshold"}}`,
		"empty marker":  `{"corpus_config":{"marker":""}}`,
		"zero maxcount": `{"server_config":{"max_count":0}}`,
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "defgen.json")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected an error but got none")
			}
		})
	}
}

func TestConfigOptions(t *testing.T) {
	config := DefaultConfig()
	if _, err := config.ParserOptions(); err != nil {
		t.Errorf("ParserOptions() failed: %v", err)
	}
	if opts, err := config.SampleOptions(); err != nil || len(opts) != 3 {
		t.Errorf("SampleOptions() = %d options, %v", len(opts), err)
	}

	config.Generate.Strategy = "nope"
	if _, err := config.SampleOptions(); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("SampleOptions() error = %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for input, expected := range testCases {
		level, err := parseLogLevel(input)
		if err != nil || level != expected {
			t.Errorf("parseLogLevel(%q) = %v, %v, want %v", input, level, err, expected)
		}
	}
	if _, err := parseLogLevel("verbose"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
