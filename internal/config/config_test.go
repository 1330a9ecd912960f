package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
scanner:
  path: /opt/tavo-cli/bin/tavo-scanner
  plugins: [llm-security, secrets]
  timeoutSeconds: 120
  outputFormat: json
bundles:
  cacheDir: /var/lib/tavo/bundles
  cacheSizeMB: 100
  cacheTTLDays: 3
  minio:
    enabled: true
    endpoint: minio.internal:9000
    accessKey: ak
    secretKey: sk
    bucketName: rule-bundles
    prefix: bundles/
    region: us-east-1
    useSSL: true
ai:
  enabled: true
  apiKey: sk-test
  model: o3-2025-04-16
usage:
  dir: /var/lib/tavo/usage
  monthlyLimitTokens: 50000
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Scanner.Path != "/opt/tavo-cli/bin/tavo-scanner" || cfg.Scanner.TimeoutSeconds != 120 {
		t.Errorf("scanner = %+v", cfg.Scanner)
	}
	if len(cfg.Scanner.Plugins) != 2 {
		t.Errorf("plugins = %v", cfg.Scanner.Plugins)
	}
	if !cfg.Bundles.Minio.Enabled || cfg.Bundles.Minio.BucketName != "rule-bundles" {
		t.Errorf("minio = %+v", cfg.Bundles.Minio)
	}
	if !cfg.AI.Enabled || cfg.AI.APIKey != "sk-test" {
		t.Errorf("ai = %+v", cfg.AI)
	}
	if cfg.Usage.MonthlyLimitTokens != 50000 {
		t.Errorf("usage = %+v", cfg.Usage)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Bundles.CacheDir == "" || cfg.Usage.Dir == "" {
		t.Errorf("state dirs not defaulted: %+v", cfg)
	}
	if cfg.AI.APIKey != "sk-from-env" {
		t.Errorf("api key = %q", cfg.AI.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}
