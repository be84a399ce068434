package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadSecretFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("s3cr3t\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("SHOWRUNNER_TEST_SECRET", "")
	t.Setenv("SHOWRUNNER_TEST_SECRET_FILE", path)

	readSecret("SHOWRUNNER_TEST_SECRET")

	if got := os.Getenv("SHOWRUNNER_TEST_SECRET"); got != "s3cr3t" {
		t.Errorf("expected secret from file, got %q", got)
	}
}

func TestReadSecretKeepsDirectValue(t *testing.T) {
	t.Setenv("SHOWRUNNER_TEST_SECRET", "direct")
	t.Setenv("SHOWRUNNER_TEST_SECRET_FILE", "/nonexistent")

	readSecret("SHOWRUNNER_TEST_SECRET")

	if got := os.Getenv("SHOWRUNNER_TEST_SECRET"); got != "direct" {
		t.Errorf("expected direct value to win, got %q", got)
	}
}

func TestLoadPipelineDefaults(t *testing.T) {
	t.Setenv("PIPELINE_TRACK_COUNT", "")
	t.Setenv("CALLBACK_BASE_URL", "https://api.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.TrackCount != 6 {
		t.Errorf("expected 6 tracks, got %d", cfg.Pipeline.TrackCount)
	}
	if cfg.Pipeline.PrimaryTrack != 1 {
		t.Errorf("expected primary track 1, got %d", cfg.Pipeline.PrimaryTrack)
	}
	if cfg.Pipeline.FailedTracksBlockCompletion {
		t.Error("failed tracks should not block completion by default")
	}
	if cfg.Callback.BaseURL != "https://api.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Callback.BaseURL)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SUNO_API_KEY", "suno-key")
	t.Setenv("RATELIMIT_TRACKS_PER_HOUR", "5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GATEWAY_ENABLED", "true")
	t.Setenv("PIPELINE_PRIMARY_TRACK", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Suno.APIKey != "suno-key" {
		t.Errorf("suno api key = %q", cfg.Suno.APIKey)
	}
	if cfg.RateLimit.TracksPerHour != 5 {
		t.Errorf("tracks per hour = %d", cfg.RateLimit.TracksPerHour)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
	if !cfg.Gateway.Enabled {
		t.Error("gateway should be enabled")
	}
	if cfg.Pipeline.PrimaryTrack != 1 {
		t.Errorf("out of range primary track should reset to 1, got %d", cfg.Pipeline.PrimaryTrack)
	}
}
