package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "TYPING_TIMEOUT", "PAGE_SIZE_DEFAULT", "PAGE_SIZE_MAX"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port, got %q", cfg.HTTPPort)
	}
	if cfg.TypingTimeout != 3*time.Second {
		t.Fatalf("expected 3s typing timeout, got %s", cfg.TypingTimeout)
	}
	if cfg.PageSizeDefault != 10 || cfg.PageSizeMax != 100 {
		t.Fatalf("unexpected page sizes: %d/%d", cfg.PageSizeDefault, cfg.PageSizeMax)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("TYPING_TIMEOUT", "5s")
	t.Setenv("BUS_INBOX_SIZE", "8")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.TypingTimeout != 5*time.Second || cfg.BusInboxSize != 8 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}
