package local

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteTempJSON materializes an arbitrary payload as a JSON file under the
// system temp directory and returns its path. Names carry a random suffix
// so concurrent calls never collide. The caller owns deletion.
func WriteTempJSON(prefix string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", prefix, err)
	}

	name := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.json", prefix, uuid.NewString()))
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// CreateRulesFile stages an inline rules payload for a scanner run.
func CreateRulesFile(rules map[string]any) (string, error) {
	return WriteTempJSON("tavo-rules", rules)
}

// CreatePluginConfigFile stages configuration for a single plugin.
func CreatePluginConfigFile(plugin string, config any) (string, error) {
	return WriteTempJSON("tavo-plugin-"+plugin, config)
}
