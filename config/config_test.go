package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/mpesa?parseTime=true")
	setEnv(t, "MPESA_CONSUMER_KEY", "key")
	setEnv(t, "MPESA_CONSUMER_SECRET", "secret")
	setEnv(t, "MPESA_BASE_URL", "https://sandbox.safaricom.co.ke")
	setEnv(t, "MPESA_SHORT_CODE", "174379")
	setEnv(t, "MPESA_PASSKEY", "passkey")
	setEnv(t, "MPESA_CALLBACK_URL", "https://example.com/stkpush/callback")
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadRequiresMpesaCredentials(t *testing.T) {
	required := []string{
		"MPESA_CONSUMER_KEY",
		"MPESA_CONSUMER_SECRET",
		"MPESA_BASE_URL",
		"MPESA_SHORT_CODE",
		"MPESA_PASSKEY",
		"MPESA_CALLBACK_URL",
	}

	for _, key := range required {
		t.Run(key, func(t *testing.T) {
			setRequiredEnv(t)
			unsetEnv(t, key)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for missing %s", key)
			}
		})
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	setRequiredEnv(t)
	setEnv(t, "APP_SERVICE_NAME", "mpesa-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "20")
	setEnv(t, "MYSQL_MAX_IDLE_CONNS", "8")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "MPESA_HTTP_TIMEOUT_SECONDS", "15")
	setEnv(t, "MPESA_TOKEN_SAFETY_MARGIN_SECONDS", "60")
	setEnv(t, "MPESA_RECONCILE_STALE_AFTER_MINUTES", "13")
	setEnv(t, "MPESA_JOB_BATCH_SIZE", "99")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "mpesa-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" {
		t.Fatalf("unexpected http port: %s", cfg.HTTP.Port)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.MaxIdleConns != 8 {
		t.Fatalf("unexpected mysql pool config: %+v", cfg.MySQL)
	}
	if cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql lifetime: %v", cfg.MySQL.ConnMaxLifetime)
	}
	if cfg.Mpesa.HTTPTimeout != 15*time.Second {
		t.Fatalf("unexpected mpesa http timeout: %v", cfg.Mpesa.HTTPTimeout)
	}
	if cfg.Mpesa.TokenSafetyMargin != 60*time.Second {
		t.Fatalf("unexpected token safety margin: %v", cfg.Mpesa.TokenSafetyMargin)
	}
	if cfg.Mpesa.CountryPrefix != "254" {
		t.Fatalf("unexpected country prefix default: %s", cfg.Mpesa.CountryPrefix)
	}
	if cfg.Mpesa.Timezone != "Africa/Nairobi" {
		t.Fatalf("unexpected timezone default: %s", cfg.Mpesa.Timezone)
	}
	if cfg.Jobs.ReconcileStaleAfter != 13*time.Minute {
		t.Fatalf("unexpected reconcile stale after: %v", cfg.Jobs.ReconcileStaleAfter)
	}
	if cfg.Jobs.BatchSize != 99 {
		t.Fatalf("unexpected job batch size: %d", cfg.Jobs.BatchSize)
	}
}
