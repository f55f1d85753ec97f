package nodes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const keyFileName = "api_keys.json"

// ResolveAPIKey returns the API key for a hosted-model provider.
//
// Resolution order:
//  1. The environment variable envVar, if set and non-empty.
//  2. The provider's entry in the key file, a JSON object mapping provider
//     names to keys, at $NODEFLOW_CONFIG_DIR/api_keys.json or, when the
//     variable is unset, <user config dir>/nodeflow/api_keys.json.
//
// An empty string with a nil error means no key is configured.
func ResolveAPIKey(provider, envVar string) (string, error) {
	if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
		return key, nil
	}

	path, err := keyFilePath()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read key file %s: %w", path, err)
	}

	var keys map[string]string
	if err := json.Unmarshal(data, &keys); err != nil {
		return "", fmt.Errorf("failed to parse key file %s: %w", path, err)
	}
	return strings.TrimSpace(keys[provider]), nil
}

// SaveAPIKey writes the provider's key to the key file, creating the file
// and its directory as needed. The file is written with mode 0600.
func SaveAPIKey(provider, key string) error {
	path, err := keyFilePath()
	if err != nil {
		return err
	}

	keys := map[string]string{}
	if data, err := os.ReadFile(path); err == nil {
		// Merge with existing entries; a corrupt file is replaced.
		_ = json.Unmarshal(data, &keys)
	}
	keys[provider] = key

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key file %s: %w", path, err)
	}
	return nil
}

func keyFilePath() (string, error) {
	if dir := os.Getenv("NODEFLOW_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, keyFileName), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(base, "nodeflow", keyFileName), nil
}
