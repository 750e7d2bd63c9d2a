package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DB_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 0.85, cfg.Resolver.SimilarityThreshold)
	assert.Equal(t, "max", cfg.Ingest.CombineRule)
	assert.Equal(t, 1.0, cfg.Ingest.DefaultWeight)
	assert.Equal(t, 3, cfg.Reasoner.MaxHops)
	assert.Equal(t, 100, cfg.Reasoner.MaxPaths)
	assert.Equal(t, 0.7, cfg.Validator.AccuracyWeight)
	assert.Equal(t, 0.3, cfg.Validator.SupportWeight)
	assert.Equal(t, 0.7, cfg.Validator.MinConfidence)
	assert.Equal(t, 15*time.Second, cfg.Reasoner.QueryTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.NLP.Models["default"].Model)
}

func TestLoadEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("NEO4J_URI", "bolt://graph:7687")
	t.Setenv("DB_DRIVER", "neo4j")
	t.Setenv("GROUNDGRAPH_ALIAS_PATH", "/tmp/aliases")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.NLP.Models["default"].APIKey)
	assert.Equal(t, "bolt://graph:7687", cfg.Database.URI)
	assert.Equal(t, "neo4j", cfg.Database.Driver)
	assert.Equal(t, "/tmp/aliases", cfg.Resolver.AliasPath)
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()
	t.Setenv("DB_DRIVER", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "groundgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
resolver:
  similarity_threshold: 0.9
  aliases:
    엔비디아: NVIDIA
validator:
  min_confidence: 0.5
router:
  live_keywords: [today, breaking]
`), 0o644))

	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Resolver.SimilarityThreshold)
	assert.Equal(t, "NVIDIA", cfg.Resolver.Aliases["엔비디아"])
	assert.Equal(t, 0.5, cfg.Validator.MinConfidence)
	assert.Equal(t, []string{"today", "breaking"}, cfg.Router.LiveKeywords)
}

func TestValidate(t *testing.T) {
	viper.Reset()
	t.Setenv("DB_DRIVER", "")
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"threshold above one", func(c *Config) { c.Resolver.SimilarityThreshold = 1.5 }},
		{"zero hops", func(c *Config) { c.Reasoner.MaxHops = 0 }},
		{"zero paths", func(c *Config) { c.Reasoner.MaxPaths = 0 }},
		{"zero weights", func(c *Config) { c.Validator.AccuracyWeight, c.Validator.SupportWeight = 0, 0 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "ladybug" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
