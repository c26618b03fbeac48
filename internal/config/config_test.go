package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlab/cardsmith/internal/config"
	"github.com/craftlab/cardsmith/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, 2, cfg.BackendMaxConcurrency)
	assert.Equal(t, 90, cfg.QueueVisibilitySeconds)
	assert.Equal(t, 3, cfg.QueueMaxRedeliveries)
	assert.Equal(t, 90*time.Second, cfg.VisibilityTimeout())
	assert.Equal(t, 168*time.Hour, cfg.SignedURLTTLGallery)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("BACKEND_MAX_CONCURRENCY", "4")
	t.Setenv("QUOTA_BASE_CARD", "7")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, 4, cfg.BackendMaxConcurrency)
	assert.Equal(t, 7, cfg.QuotaPolicy().Base[domain.KindCard])
}

func TestPromptBounds(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	mn, mx := cfg.PromptBounds(domain.KindCard)
	assert.Equal(t, 10, mn)
	assert.Equal(t, 1024, mx)
	mn, mx = cfg.PromptBounds(domain.KindVideo)
	assert.Equal(t, 5, mn)
	assert.Equal(t, 512, mx)
}

func TestQuotaPolicyFromConfig(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	p := cfg.QuotaPolicy()
	assert.Equal(t, 5, p.Base[domain.KindCard])
	assert.Equal(t, 3, p.Base[domain.KindVideo])
	assert.Equal(t, 1, p.Base[domain.KindPrint])
}
