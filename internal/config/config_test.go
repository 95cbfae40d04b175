package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadGameSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
auth:
  jwt_secret: s3cret
game:
  default_capacity: 50
  allow_anonymous: false
  countdown: 5s
  answer_grace: bogus
  single_active_session_per_host: true
  base_points: 500
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	s := cfg.Game.Settings()
	if s.DefaultCapacity != 50 || s.AllowAnonymous || !s.SingleActiveSessionPerHost {
		t.Fatalf("unexpected settings: %+v", s)
	}
	if s.Countdown != 5*time.Second {
		t.Fatalf("expected 5s countdown, got %s", s.Countdown)
	}
	if s.AnswerGrace != 250*time.Millisecond {
		t.Fatalf("expected default grace for an invalid value, got %s", s.AnswerGrace)
	}
	if s.RevealWindow != 8*time.Second {
		t.Fatalf("expected default reveal window, got %s", s.RevealWindow)
	}

	scorer := cfg.Game.Scorer()
	if scorer.BasePoints != 500 || scorer.MinSpeedFactor != 0.5 {
		t.Fatalf("unexpected scorer: %+v", scorer)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Game.Settings().AllowAnonymous {
		t.Fatal("expected anonymous players to be allowed by default")
	}
}
