package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/pkg/logger"
)

func TestBootstrapIdempotent(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("CHATTER_DATABASE_DSN", filepath.Join(t.TempDir(), "chatter.db"))

	ctx := context.Background()

	first, err := Bootstrap(ctx, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { first.Repo.Close() })

	require.NotNil(t, first.Repo)
	require.NotNil(t, first.Orchestrator)
	require.NotNil(t, first.Scheduler)
	assert.False(t, first.SchedulerStarted)
	assert.NotEmpty(t, first.Manager.Names())
	assert.NoError(t, first.Repo.Ping(ctx))

	second, err := Bootstrap(ctx, Options{})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestBootstrapInvalidConfig(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("CHATTER_DATABASE_DRIVER", "mysql")

	_, err := Bootstrap(context.Background(), Options{})
	require.Error(t, err)
}

func TestBuildManagerKeyGates(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sources.GoogleNews.Enabled = true
	cfg.Sources.Stocktwits.Enabled = true

	manager := BuildManager(cfg, logger.Nop())
	names := manager.Names()
	assert.Contains(t, names, "google_news")
	assert.Contains(t, names, "stocktwits")
	assert.NotContains(t, names, "alpha_vantage")

	cfg.Sources.AlphaVantage.APIKey = "key"
	manager = BuildManager(cfg, logger.Nop())
	assert.Contains(t, manager.Names(), "alpha_vantage")
}
