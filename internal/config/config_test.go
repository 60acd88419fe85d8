package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_UsesSettlementSweepSecretAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SWEEP_SHARED_SECRET")
	setEnvWithCleanup(t, "SETTLEMENT_SWEEP_SECRET", "alias-only-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SweepSharedSecret != "alias-only-secret" {
		t.Fatalf("expected SweepSharedSecret from alias env var, got %q", cfg.SweepSharedSecret)
	}
}

func TestLoadConfig_SweepSecretTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SWEEP_SHARED_SECRET", "primary-secret")
	setEnvWithCleanup(t, "SETTLEMENT_SWEEP_SECRET", "alias-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SweepSharedSecret != "primary-secret" {
		t.Fatalf("expected SweepSharedSecret to prioritize SWEEP_SHARED_SECRET, got %q", cfg.SweepSharedSecret)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SWEEP_SCHEDULE")
	unsetEnvWithCleanup(t, "APPLY_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "REDIS_RATE_LIMIT_PREFIX")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SweepSchedule != "0 2 * * *" {
		t.Fatalf("expected default sweep schedule, got %q", cfg.SweepSchedule)
	}
	if cfg.ApplyRateLimitPerMinute != 10 {
		t.Fatalf("expected default apply rate limit 10, got %d", cfg.ApplyRateLimitPerMinute)
	}
	if cfg.RedisRateLimitPrefix != "betatide:rate_limit" {
		t.Fatalf("expected default rate limit prefix, got %q", cfg.RedisRateLimitPrefix)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
