package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(25<<20), cfg.Ingest.MaxFileSizeBytes)
	assert.Equal(t, 2*time.Minute, cfg.Ingest.StageTimeout)
	assert.Equal(t, "EUR", cfg.Ingest.DefaultCurrency)
	assert.Equal(t, "templates", cfg.Templates.Dir)
	assert.Equal(t, 2, cfg.Dedup.AmountPrecision)
	assert.Equal(t, "0.01", cfg.Reconcile.BalanceTolerance)
	assert.False(t, cfg.Reconcile.Strict)
	assert.InDelta(t, 0.70, cfg.Score.ReviewThreshold, 1e-9)
	assert.False(t, cfg.OCR.Enabled)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("INGEST_MAX_FILE_SIZE_BYTES", "1048576")
	t.Setenv("INGEST_STAGE_TIMEOUT", "30s")
	t.Setenv("INGEST_DEFAULT_CURRENCY", "USD")
	t.Setenv("RECONCILE_STRICT", "true")
	t.Setenv("SCORE_REVIEW_THRESHOLD", "0.85")
	t.Setenv("OCR_ENABLED", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1<<20), cfg.Ingest.MaxFileSizeBytes)
	assert.Equal(t, 30*time.Second, cfg.Ingest.StageTimeout)
	assert.Equal(t, "USD", cfg.Ingest.DefaultCurrency)
	assert.True(t, cfg.Reconcile.Strict)
	assert.InDelta(t, 0.85, cfg.Score.ReviewThreshold, 1e-9)
	assert.True(t, cfg.OCR.Enabled)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "not-a-port")
	t.Setenv("INGEST_STAGE_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 2*time.Minute, cfg.Ingest.StageTimeout)
}

func TestLoad_RejectsBadThreshold(t *testing.T) {
	t.Setenv("SCORE_REVIEW_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCORE_REVIEW_THRESHOLD")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "ingest",
		Password: "secret",
		Database: "ledgerlift",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=ingest password=secret dbname=ledgerlift sslmode=require",
		db.DSN(),
	)
}
