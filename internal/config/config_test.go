package config_test

import (
	"testing"
	"time"

	"github.com/oneclientcore/runtime/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, errs := config.Load()
	if len(errs) != 0 {
		t.Fatalf("errs = %v, want none with a clean environment", errs)
	}
	if cfg.CacheDuration != 3600*time.Second {
		t.Errorf("CacheDuration = %v", cfg.CacheDuration)
	}
	if cfg.DevDumpBufferSize != 1<<20 {
		t.Errorf("DevDumpBufferSize = %d", cfg.DevDumpBufferSize)
	}
	if cfg.LogHTTPTransactions {
		t.Errorf("LogHTTPTransactions = true, want false by default")
	}
	if cfg.RegistryURL.String() != "http://localhost:8321" {
		t.Errorf("RegistryURL = %v", cfg.RegistryURL)
	}
	if cfg.DevLogDirective != "off" {
		t.Errorf("DevLogDirective = %q", cfg.DevLogDirective)
	}
}

func TestLoadOverridesAndMalformedFallback(t *testing.T) {
	t.Setenv("ONESDK_CONFIG_CACHE_DURATION", "60")
	t.Setenv("ONESDK_LOG", "YES")
	t.Setenv("ONESDK_CONFIG_DEV_DUMP_BUFFER_SIZE", "not-a-number")

	cfg, errs := config.Load()
	if cfg.CacheDuration != 60*time.Second {
		t.Errorf("CacheDuration = %v, want 60s", cfg.CacheDuration)
	}
	if !cfg.LogHTTPTransactions {
		t.Errorf("LogHTTPTransactions = false, want true for ONESDK_LOG=YES")
	}
	if cfg.DevDumpBufferSize != 1<<20 {
		t.Errorf("DevDumpBufferSize = %d, want default fallback", cfg.DevDumpBufferSize)
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want exactly 1 for the malformed buffer size", errs)
	}
}
