package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Scanner struct {
		Path             string   `yaml:"path"` // optional; auto-resolved when empty
		Plugins          []string `yaml:"plugins"`
		RulesPath        string   `yaml:"rulesPath"`
		TimeoutSeconds   int      `yaml:"timeoutSeconds"`
		WorkingDirectory string   `yaml:"workingDirectory"`
		OutputFormat     string   `yaml:"outputFormat"`
	} `yaml:"scanner"`

	Bundles struct {
		CacheDir     string `yaml:"cacheDir"`
		CacheSizeMB  int    `yaml:"cacheSizeMB"`
		CacheTTLDays int    `yaml:"cacheTTLDays"`
		LocalDir     string `yaml:"localDir"`

		Minio struct {
			Enabled    bool   `yaml:"enabled"`
			Endpoint   string `yaml:"endpoint"`
			AccessKey  string `yaml:"accessKey"`
			SecretKey  string `yaml:"secretKey"`
			BucketName string `yaml:"bucketName"`
			Prefix     string `yaml:"prefix"`
			Region     string `yaml:"region"`
			UseSSL     bool   `yaml:"useSSL"`
		} `yaml:"minio"`
	} `yaml:"bundles"`

	AI struct {
		Enabled bool   `yaml:"enabled"`
		APIKey  string `yaml:"apiKey"` // falls back to OPENAI_API_KEY
		Model   string `yaml:"model"`
	} `yaml:"ai"`

	Usage struct {
		Dir                string `yaml:"dir"`
		MonthlyLimitTokens int    `yaml:"monthlyLimitTokens"`
	} `yaml:"usage"`
}

// Load reads config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Bundles.CacheDir == "" {
		c.Bundles.CacheDir = defaultStateDir("bundles")
	}
	if c.Usage.Dir == "" {
		c.Usage.Dir = defaultStateDir("usage")
	}
	if c.AI.APIKey == "" {
		c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// defaultStateDir keeps mutable state under ~/.tavo the way the CLI does.
func defaultStateDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return home + "/.tavo/" + name
}
