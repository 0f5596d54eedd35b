// Package settings loads process configuration for the synth command: a .env file, an
// optional YAML file, then environment overrides.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/provider"
)

// Backend is the model backend plus the sampling parameters sent with every request.
type Backend struct {
	provider.Config            `yaml:",inline"`
	synthesis.GenerationParams `yaml:",inline"`
}

type Settings struct {
	Backend    Backend                    `yaml:"backend"`
	Rephrase   synthesis.PipelineConfig   `yaml:"rephrase"`
	Verifier   string                     `yaml:"verifier"`
	Generation synthesis.GenerationConfig `yaml:"generation"`
	// Journal is the SQLite run journal path. Empty disables the journal.
	Journal string `yaml:"journal"`
}

func Default() Settings {
	return Settings{
		Backend: Backend{
			Config: provider.Config{
				Provider: provider.OpenAIResponsesProvider,
				Model:    "gpt-5-mini",
			},
			GenerationParams: synthesis.GenerationParams{Temperature: 0.4, TopP: 0.9},
		},
		Rephrase:   synthesis.DefaultPipelineConfig(),
		Verifier:   "composite",
		Generation: synthesis.DefaultGenerationConfig(),
	}
}

func (s Settings) Validate() error {
	if err := s.Backend.Validate(); err != nil {
		return err
	}
	if err := s.Rephrase.Validate(); err != nil {
		return err
	}
	if _, err := synthesis.NewFidelityVerifier(s.Verifier, nil); err != nil {
		return err
	}
	return s.Generation.Validate()
}

// Load reads ./.env and the YAML file at path (optional; empty skips it) over the defaults, then
// applies environment overrides. Process environment wins over .env values.
func Load(path string) (Settings, error) {
	return load(path, ".env", os.Getenv)
}

func load(path, envFile string, getenv func(string) string) (Settings, error) {
	env, err := readEnvFile(envFile)
	if err != nil {
		return Settings{}, err
	}
	lookup := func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return env[key]
	}

	s := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	applyEnv(&s, lookup)
	return s, nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return env, nil
}

func applyEnv(s *Settings, lookup func(string) string) {
	if v := lookup("LLM_PROVIDER"); v != "" {
		s.Backend.Provider = v
	}
	if v := lookup("LLM_MODEL"); v != "" {
		s.Backend.Model = v
	}
	if v := lookup("LLM_BASE_URL"); v != "" {
		s.Backend.BaseURL = v
	}
	if v := lookup("SYNTH_JOURNAL"); v != "" {
		s.Journal = v
	}

	key := lookup("LLM_API_KEY")
	if key == "" {
		switch strings.ToLower(s.Backend.Provider) {
		case provider.GeminiProvider:
			key = lookup("GEMINI_API_KEY")
		default:
			key = lookup("OPENAI_API_KEY")
		}
	}
	if key != "" {
		s.Backend.APIKey = key
	}
}
