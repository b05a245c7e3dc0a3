package config

import (
	"reflect"
	"testing"
	"time"
)

func TestNew_RequiredKeys(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "s")
	if _, err := New(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/painter")
	t.Setenv("JWT_SECRET", "")
	if _, err := New(); err == nil {
		t.Error("expected error without JWT_SECRET")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/painter")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port: got %q, want 8080", cfg.Port)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr: got %q", cfg.Addr())
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Errorf("cors origins: got %v, want %v", cfg.CORSOrigins, want)
	}

	l := cfg.Limits
	if l.InitialCredits != 3 || l.ThrottleMax != 10 || l.ThrottleWindow != time.Minute ||
		l.TransformTimeout != 2*time.Minute || l.MaxUploadBytes != 20*1024*1024 {
		t.Errorf("unexpected limits: %+v", l)
	}
}
