package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/domus/internal/interfaces"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	if config.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", config.Server.Port)
	}
	if config.LLM.DefaultProvider != LLMProviderClaude {
		t.Errorf("expected default provider claude, got %s", config.LLM.DefaultProvider)
	}
	if config.Research.MaxAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", config.Research.MaxAttempts)
	}
	if config.Fetch.MaxBodySize != 10*1024*1024 {
		t.Errorf("expected 10MB body cap, got %d", config.Fetch.MaxBodySize)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadFromFilesLayering(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	if err := os.WriteFile(base, []byte(`
environment = "production"

[server]
port = 9090

[research]
max_attempts = 5
`), 0o644); err != nil {
		t.Fatal(err)
	}

	override := filepath.Join(dir, "override.toml")
	if err := os.WriteFile(override, []byte(`
[server]
port = 9191
`), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !config.IsProduction() {
		t.Error("expected production environment from base file")
	}
	if config.Server.Port != 9191 {
		t.Errorf("later file must win: expected port 9191, got %d", config.Server.Port)
	}
	if config.Research.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts from base file, got %d", config.Research.MaxAttempts)
	}
	// Untouched sections keep their defaults.
	if config.Server.Host != "localhost" {
		t.Errorf("expected default host, got %s", config.Server.Host)
	}
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	if _, err := LoadFromFiles("/nonexistent/domus.toml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadFromFilesInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte(`
[server]
port = 99999
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromFiles(bad); err == nil {
		t.Error("expected validation error for out-of-range port")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOMUS_SERVER_PORT", "7070")
	t.Setenv("DOMUS_SERVER_HOST", "0.0.0.0")
	t.Setenv("DOMUS_LOG_LEVEL", "debug")
	t.Setenv("DOMUS_LLM_PROVIDER", "gemini")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Server.Port != 7070 {
		t.Errorf("expected env port 7070, got %d", config.Server.Port)
	}
	if config.Server.Host != "0.0.0.0" {
		t.Errorf("expected env host, got %s", config.Server.Host)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", config.Logging.Level)
	}
	if config.LLM.DefaultProvider != LLMProviderGemini {
		t.Errorf("expected gemini provider, got %s", config.LLM.DefaultProvider)
	}
	if config.Claude.APIKey != "sk-env" {
		t.Error("expected api key from environment")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 6060, "127.0.0.1")
	if config.Server.Port != 6060 || config.Server.Host != "127.0.0.1" {
		t.Errorf("flags must win: got %s:%d", config.Server.Host, config.Server.Port)
	}

	// Zero values leave the config untouched.
	ApplyFlagOverrides(config, 0, "")
	if config.Server.Port != 6060 || config.Server.Host != "127.0.0.1" {
		t.Error("zero-valued flags must not override")
	}
}

type fakeKV struct {
	values map[string]string
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", interfaces.ErrKeyNotFound
}

func (f *fakeKV) Set(ctx context.Context, key, value, description string) error {
	f.values[key] = value
	return nil
}

func (f *fakeKV) GetAll(ctx context.Context) (map[string]string, error) {
	return f.values, nil
}

func TestResolveAPIKey(t *testing.T) {
	ctx := context.Background()
	kv := &fakeKV{values: map[string]string{"anthropic_api_key": "sk-kv"}}

	// KV value wins over the config fallback.
	key, err := ResolveAPIKey(ctx, kv, "anthropic_api_key", "sk-config")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "sk-kv" {
		t.Errorf("expected KV value to win, got %q", key)
	}

	// Config fallback when the KV store has no entry.
	key, err = ResolveAPIKey(ctx, kv, "gemini_api_key", "sk-config")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "sk-config" {
		t.Errorf("expected config fallback, got %q", key)
	}

	// Neither source set is an error.
	if _, err := ResolveAPIKey(ctx, kv, "gemini_api_key", ""); err == nil {
		t.Error("expected error when no key is configured")
	}

	// A nil KV store falls straight through to the config.
	key, err = ResolveAPIKey(ctx, nil, "anthropic_api_key", "sk-config")
	if err != nil || key != "sk-config" {
		t.Errorf("expected config fallback with nil store, got %q, %v", key, err)
	}
}

func TestNewInvocationIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewInvocationID()
		if seen[id] {
			t.Fatalf("duplicate invocation id %s", id)
		}
		seen[id] = true
	}
}

func TestRetryKnobsAreDurations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domus.toml")
	if err := os.WriteFile(path, []byte(`
[research]
initial_backoff = 500000000
max_backoff = 10000000000
`), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFiles(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Research.InitialBackoff != 500*time.Millisecond {
		t.Errorf("expected 500ms initial backoff, got %v", config.Research.InitialBackoff)
	}
	if config.Research.MaxBackoff != 10*time.Second {
		t.Errorf("expected 10s max backoff, got %v", config.Research.MaxBackoff)
	}
}
