package nodes

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAPIKeyFromEnv(t *testing.T) {
	t.Setenv("NODEFLOW_CONFIG_DIR", t.TempDir())
	t.Setenv("TEST_PROVIDER_KEY", "  sk-env-123  ")

	key, err := ResolveAPIKey("test", "TEST_PROVIDER_KEY")
	if err != nil {
		t.Fatalf("ResolveAPIKey failed: %v", err)
	}
	if key != "sk-env-123" {
		t.Errorf("expected trimmed env key, got %q", key)
	}
}

func TestResolveAPIKeyFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NODEFLOW_CONFIG_DIR", dir)
	t.Setenv("TEST_PROVIDER_KEY", "")

	data := []byte(`{"test": "sk-file-456"}`)
	if err := os.WriteFile(filepath.Join(dir, keyFileName), data, 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	key, err := ResolveAPIKey("test", "TEST_PROVIDER_KEY")
	if err != nil {
		t.Fatalf("ResolveAPIKey failed: %v", err)
	}
	if key != "sk-file-456" {
		t.Errorf("expected key from file, got %q", key)
	}
}

func TestResolveAPIKeyMissing(t *testing.T) {
	t.Setenv("NODEFLOW_CONFIG_DIR", t.TempDir())
	t.Setenv("TEST_PROVIDER_KEY", "")

	key, err := ResolveAPIKey("test", "TEST_PROVIDER_KEY")
	if err != nil {
		t.Fatalf("ResolveAPIKey failed: %v", err)
	}
	if key != "" {
		t.Errorf("expected empty key when nothing configured, got %q", key)
	}
}

func TestSaveAPIKeyRoundTrip(t *testing.T) {
	t.Setenv("NODEFLOW_CONFIG_DIR", t.TempDir())
	t.Setenv("TEST_PROVIDER_KEY", "")

	if err := SaveAPIKey("test", "sk-saved-789"); err != nil {
		t.Fatalf("SaveAPIKey failed: %v", err)
	}
	// A second provider merges rather than overwrites.
	if err := SaveAPIKey("other", "sk-other"); err != nil {
		t.Fatalf("second SaveAPIKey failed: %v", err)
	}

	key, err := ResolveAPIKey("test", "TEST_PROVIDER_KEY")
	if err != nil {
		t.Fatalf("ResolveAPIKey failed: %v", err)
	}
	if key != "sk-saved-789" {
		t.Errorf("expected saved key, got %q", key)
	}
}
