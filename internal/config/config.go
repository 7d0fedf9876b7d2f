// Package config loads application configuration from defaults, a JSON
// config file, and QUIZFORGE_* environment variables, in that precedence
// order.
package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig
	Ollama     OllamaConfig
	Storage    StorageConfig
	Index      IndexConfig
	Chunking   ChunkingConfig
	Generation GenerationConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
	// AuthToken protects mutating API routes. Environment-only; never
	// written to the config file.
	AuthToken string
}

type OllamaConfig struct {
	BaseURL     string
	Model       string
	ChatTimeout string // duration string, e.g. "120s"
}

// Timeout parses ChatTimeout; zero means the engine default.
func (c OllamaConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.ChatTimeout)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

type StorageConfig struct {
	DataDir string
}

type IndexConfig struct {
	MaxFeatures int
}

type ChunkingConfig struct {
	Size    int
	Overlap int
}

type GenerationConfig struct {
	// MaxRetries is the number of extra generation rounds allowed when a
	// run comes up short.
	MaxRetries int
}

type LogConfig struct {
	Level string // debug, info, warn, error
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "llama3",
			ChatTimeout: "120s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Index: IndexConfig{
			MaxFeatures: 5000,
		},
		Chunking: ChunkingConfig{
			Size:    2000,
			Overlap: 50,
		},
		Generation: GenerationConfig{
			MaxRetries: 1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/quizforge/config.json and applies QUIZFORGE_* environment
// overrides on top.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
