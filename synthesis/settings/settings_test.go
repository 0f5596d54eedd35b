package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/provider"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	t.Parallel()

	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, provider.OpenAIResponsesProvider, s.Backend.Provider)
	assert.InDelta(t, 0.4, s.Backend.Temperature, 1e-9)
	assert.InDelta(t, 0.9, s.Backend.TopP, 1e-9)
	assert.Equal(t, 1024, s.Rephrase.ChunkSize)
	assert.Equal(t, synthesis.ConsistencyPerSection, s.Generation.ConsistencyScope)
	assert.Empty(t, s.Journal)
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "synth.yaml", `
backend:
  provider: gemini
  model: gemini-2.5-flash
  temperature: 0.2
  requests_per_second: 1.5
rephrase:
  chunk_size: 256
  stitch_match: normalized
generation:
  max_section_retries: 4
  consistency_scope: document
verifier: jaccard
journal: runs.db
`)

	s, err := load(path, "", envMap(nil))
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	assert.Equal(t, provider.GeminiProvider, s.Backend.Provider)
	assert.Equal(t, "gemini-2.5-flash", s.Backend.Model)
	assert.InDelta(t, 0.2, s.Backend.Temperature, 1e-9)
	assert.InDelta(t, 0.9, s.Backend.TopP, 1e-9)
	assert.InDelta(t, 1.5, s.Backend.RequestsPerSecond, 1e-9)
	assert.Equal(t, 256, s.Rephrase.ChunkSize)
	assert.Equal(t, synthesis.StitchNormalized, s.Rephrase.StitchMatch)
	assert.InDelta(t, 0.85, s.Rephrase.FidelityThreshold, 1e-9)
	assert.Equal(t, 4, s.Generation.MaxSectionRetries)
	assert.Equal(t, synthesis.ConsistencyDocument, s.Generation.ConsistencyScope)
	assert.Equal(t, "jaccard", s.Verifier)
	assert.Equal(t, "runs.db", s.Journal)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "LLM_MODEL=from-dotenv\nOPENAI_API_KEY=dotenv-key\nSYNTH_JOURNAL=dotenv.db\n")

	s, err := load("", envFile, envMap(map[string]string{
		"LLM_PROVIDER":  "openai-chat",
		"LLM_BASE_URL":  "http://localhost:8000/v1/",
		"SYNTH_JOURNAL": "process.db",
	}))
	require.NoError(t, err)

	assert.Equal(t, provider.OpenAIChatProvider, s.Backend.Provider)
	assert.Equal(t, "from-dotenv", s.Backend.Model)
	assert.Equal(t, "http://localhost:8000/v1/", s.Backend.BaseURL)
	assert.Equal(t, "dotenv-key", s.Backend.APIKey)
	assert.Equal(t, "process.db", s.Journal)
}

func TestLoad_APIKeyPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"generic key wins", map[string]string{"LLM_API_KEY": "generic", "OPENAI_API_KEY": "openai"}, "generic"},
		{"openai fallback", map[string]string{"OPENAI_API_KEY": "openai", "GEMINI_API_KEY": "gemini"}, "openai"},
		{"gemini fallback", map[string]string{"LLM_PROVIDER": "gemini", "OPENAI_API_KEY": "openai", "GEMINI_API_KEY": "gemini"}, "gemini"},
		{"none", map[string]string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := load("", "", envMap(tt.env))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Backend.APIKey)
		})
	}
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	t.Parallel()

	_, err := load("", filepath.Join(t.TempDir(), ".env"), envMap(nil))
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), "", envMap(nil))
	assert.Error(t, err)

	bad := writeFile(t, t.TempDir(), "bad.yaml", "backend: [unclosed")
	_, err = load(bad, "", envMap(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	s := Default()
	s.Verifier = "bogus"
	assert.Error(t, s.Validate())

	s = Default()
	s.Rephrase.ChunkSize = 0
	var ce *synthesis.ConfigurationError
	require.True(t, errors.As(s.Validate(), &ce))
	assert.Equal(t, "chunk_size", ce.Field)

	s = Default()
	s.Backend.Provider = "unknown"
	require.True(t, errors.As(s.Validate(), &ce))
	assert.Equal(t, "backend.provider", ce.Field)
}
