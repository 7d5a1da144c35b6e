package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mca/internal/external"
	"github.com/abhisek/mca/internal/intervention"
	"github.com/abhisek/mca/internal/llm"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"MCA_DB", "MCA_LOG_LEVEL", "MCA_EXTERNAL_KIND", "MCA_EXTERNAL_URL", "MCA_EXTERNAL_TIMEOUT", "MCA_MAX_INTERVENTIONS", "MCA_LLM_PROVIDER",
		"MCA_ANTHROPIC_API_KEY", "MCA_ANTHROPIC_MODEL", "MCA_OPENAI_MODEL", "MCA_GEMINI_MODEL", "MCA_OPENROUTER_MODEL", "MCA_ARCHIVE_DIR", "MCA_SPOOL_DIR", "MCA_LOG_FORMAT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	isolate(t)
	p := writeFile(t, "mca.yaml", `
store:
  path: /tmp/mca.db
logging:
  level: debug
  format: json
external:
  kind: http
  base_url: http://localhost:5001
  timeout: 500ms
  options:
    headers:
      X-Api-Key: secret
learner:
  retention: 200
  analyze_every: 5
  archive_dir: /tmp/archive
recommender:
  max_count: 2
  caps:
    agency: 0
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/mca.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, external.KindHTTP, cfg.External.Kind)
	assert.Equal(t, 500*time.Millisecond, cfg.External.Timeout)
	assert.Contains(t, cfg.External.Options, "headers")
	assert.Equal(t, 200, cfg.Learner.Retention)
	assert.Equal(t, 5, cfg.Learner.AnalyzeEvery)
	assert.Equal(t, 20, cfg.Learner.Window, "unset fields keep defaults")
	assert.Equal(t, "/tmp/archive", cfg.Learner.ArchiveDir)
	assert.Equal(t, 2, cfg.Recommender.MaxCount)
	assert.Equal(t, 0, cfg.Recommender.Caps[intervention.Agency])
	assert.Equal(t, 2, cfg.Recommender.Caps[intervention.Verification])
}

func TestLoad_TOML(t *testing.T) {
	isolate(t)
	p := writeFile(t, "mca.toml", `
[logging]
level = "warn"

[external]
kind = "llm"

[llm]
provider = "mock"

[learner]
retention = 50
archive_dir = "/tmp/a"

[ingest]
spool_dir = "/tmp/spool"
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, external.KindLLM, cfg.External.Kind)
	assert.Equal(t, llm.ProviderMock, cfg.LLM.Provider)
	assert.Equal(t, 50, cfg.Learner.Retention)
	assert.Equal(t, "/tmp/a", cfg.Learner.ArchiveDir)
	assert.Equal(t, "/tmp/spool", cfg.Ingest.SpoolDir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("MCA_DB", "/data/env.db")
	t.Setenv("MCA_EXTERNAL_KIND", "http")
	t.Setenv("MCA_EXTERNAL_URL", "http://svm:5001")
	t.Setenv("MCA_EXTERNAL_TIMEOUT", "1s")
	t.Setenv("MCA_MAX_INTERVENTIONS", "5")

	cfg, err := Load(writeFile(t, "c.yaml", "store:\n  path: /data/file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/data/env.db", cfg.Store.Path)
	assert.Equal(t, "http://svm:5001", cfg.External.BaseURL)
	assert.Equal(t, time.Second, cfg.External.Timeout)
	assert.Equal(t, 5, cfg.Recommender.MaxCount)
}

func TestLoad_DefaultPath(t *testing.T) {
	isolate(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "mca"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "mca", "config.yaml"), []byte("logging:\n  level: error\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name, file, body string
	}{
		{"bad yaml", "c.yaml", "store: [unclosed"},
		{"bad toml", "c.toml", "store = = 1"},
		{"http without url", "c.yaml", "external:\n  kind: http\n"},
		{"unknown kind", "c.yaml", "external:\n  kind: svm\n"},
		{"unknown category", "c.yaml", "recommender:\n  caps:\n    nagging: 1\n"},
		{"negative max", "c.yaml", "recommender:\n  max_count: -1\n"},
		{"bad format", "c.yaml", "logging:\n  format: xml\n"},
		{"llm without key", "c.yaml", "external:\n  kind: llm\nllm:\n  provider: anthropic\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MCA_ANTHROPIC_API_KEY", "")
			_, err := Load(writeFile(t, tt.file, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("MCA_EXTERNAL_TIMEOUT", "soon")
	_, err = Load("")
	assert.Error(t, err)
}
