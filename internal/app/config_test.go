package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoadConfigDefaults(t *testing.T) {

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "*/15 * * * *", cfg.SnapshotRefreshCron)
	require.Equal(t, 2, cfg.WorkerConcurrency)
	require.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("token"), bcrypt.MinCost)
	require.NoError(t, err)

	valid := func() Config {
		return Config{
			PGDSN:               "postgres://localhost/receivables",
			ReportCacheTTL:      1,
			SnapshotRefreshCron: "*/5 * * * *",
			WarmupCron:          "0 2 * * *",
			WorkerConcurrency:   1,
			ReloadTokenHash:     string(hash),
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cases := map[string]func(*Config){
		"missing dsn":       func(c *Config) { c.PGDSN = "" },
		"zero ttl":          func(c *Config) { c.ReportCacheTTL = 0 },
		"bad refresh cron":  func(c *Config) { c.SnapshotRefreshCron = "every minute" },
		"empty warmup cron": func(c *Config) { c.WarmupCron = "" },
		"no workers":        func(c *Config) { c.WorkerConcurrency = 0 },
		"plain token":       func(c *Config) { c.ReloadTokenHash = "token" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
