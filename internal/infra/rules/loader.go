package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Heuristic is a single pattern check inside a rule.
type Heuristic struct {
	Type    string `yaml:"type" json:"type"` // semgrep | opa
	Pattern string `yaml:"pattern" json:"pattern"`
	Message string `yaml:"message" json:"message"`
}

// Rule is one entry of a rule bundle. The rule language itself is owned by
// tavo-scanner; this side only loads, validates shape, and ships bundles on.
type Rule struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Category    string      `yaml:"category" json:"category"`
	Subcategory string      `yaml:"subcategory,omitempty" json:"subcategory,omitempty"`
	Severity    string      `yaml:"severity" json:"severity"`
	RuleType    string      `yaml:"rule_type" json:"rule_type"` // opengrep | opa | hybrid | ai-only
	Tags        []string    `yaml:"tags,omitempty" json:"tags,omitempty"`
	Heuristics  []Heuristic `yaml:"heuristics,omitempty" json:"heuristics,omitempty"`
	Version     string      `yaml:"version,omitempty" json:"version,omitempty"`
}

// Bundle is a named collection of rules.
type Bundle struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Rules       []Rule `yaml:"rules" json:"rules"`
}

// bundleIndex is the directory-form manifest (index.json / bundle.json).
type bundleIndex struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Loader reads rule bundles from a single YAML/JSON file or from a bundle
// directory (index.json plus *.yaml rule files).
type Loader struct{}

func NewLoader() *Loader { return &Loader{} }

// Load reads a bundle from path, which may be a file or a directory.
func (l *Loader) Load(path string) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("bundle path not found: %w", err)
	}
	if info.IsDir() {
		return l.loadDirectory(path)
	}
	return l.loadFile(path)
}

func (l *Loader) loadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b Bundle
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parse yaml bundle %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parse json bundle %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported bundle format: %s", filepath.Ext(path))
	}

	if b.Name == "" {
		b.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &b, nil
}

func (l *Loader) loadDirectory(dir string) (*Bundle, error) {
	var index *bundleIndex
	for _, name := range []string{"bundle.json", "index.json", "manifest.json"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var idx bundleIndex
		if err := json.Unmarshal(data, &idx); err != nil {
			return nil, fmt.Errorf("parse bundle index %s: %w", name, err)
		}
		index = &idx
		break
	}
	if index == nil {
		return nil, fmt.Errorf("no index file found in %s", dir)
	}

	b := &Bundle{
		Name:        index.Name,
		Version:     index.Version,
		Description: index.Description,
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	for _, ruleFile := range matches {
		data, err := os.ReadFile(ruleFile)
		if err != nil {
			return nil, err
		}
		var doc struct {
			Rules []Rule `yaml:"rules"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse rules file %s: %w", ruleFile, err)
		}
		b.Rules = append(b.Rules, doc.Rules...)
	}
	return b, nil
}

var (
	validRuleTypes  = map[string]bool{"opengrep": true, "opa": true, "hybrid": true, "ai-only": true}
	validSeverities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
)

// Validate checks a rule's shape and returns every problem found.
func Validate(r Rule) []string {
	var errs []string

	if r.ID == "" {
		errs = append(errs, "missing rule id")
	}
	if !validRuleTypes[r.RuleType] {
		errs = append(errs, fmt.Sprintf("invalid rule_type: %q", r.RuleType))
	}
	if !validSeverities[strings.ToLower(r.Severity)] {
		errs = append(errs, fmt.Sprintf("invalid severity: %q", r.Severity))
	}

	if r.RuleType == "opengrep" || r.RuleType == "hybrid" {
		if len(r.Heuristics) == 0 {
			errs = append(errs, "opengrep and hybrid rules must have heuristics")
		}
	}
	for i, h := range r.Heuristics {
		if h.Type != "semgrep" && h.Type != "opa" {
			errs = append(errs, fmt.Sprintf("heuristic %d: invalid type %q", i, h.Type))
		}
		if h.Pattern == "" {
			errs = append(errs, fmt.Sprintf("heuristic %d: missing pattern", i))
		}
	}
	return errs
}

// ValidateBundle runs Validate over every rule, keyed by rule id.
func ValidateBundle(b *Bundle) map[string][]string {
	out := map[string][]string{}
	for _, r := range b.Rules {
		if errs := Validate(r); len(errs) > 0 {
			key := r.ID
			if key == "" {
				key = r.Name
			}
			out[key] = errs
		}
	}
	return out
}
