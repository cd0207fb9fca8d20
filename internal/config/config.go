// Package config holds the template search configuration and the spaces
// manifest, and turns them into immutable snapshots.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("trellis.config")

// Config is the project level search configuration.
type Config struct {
	TemplateRoots     []string `json:"templateRoots"`
	DefaultExtensions []string `json:"defaultExtensions"`
	IgnoreGlobs       []string `json:"ignoreGlobs"`
}

var defaultConfig = Config{
	TemplateRoots:     []string{"templates"},
	DefaultExtensions: []string{".njk", ".nunjucks", ".html"},
	IgnoreGlobs:       []string{"**/node_modules/**", "**/.git/**"},
}

// Default returns a copy of the built-in configuration.
func Default() Config {
	return defaultConfig.clone()
}

// Load overlays the fields present in v onto the defaults. v is usually
// the decoded initialization options or settings of an LSP client.
func Load(v any) (Config, error) {
	cfg := Default()
	if v == nil {
		return cfg, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal source: %w", err)
	}

	// only fields present in src will overwrite.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal into Config: %w", err)
	}

	return cfg.normalized(), nil
}

// LoadFromJSON reads a JSON (comments and trailing commas allowed) document
// from r into a Config.
func LoadFromJSON(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg.normalized(), nil
}

// LoadFile reads a config file. Any failure falls back to the defaults.
func LoadFile(path string) Config {
	f, err := os.Open(path)
	if err != nil {
		log.Warningf("config %s unavailable, using defaults: %v", path, err)
		return Default()
	}
	defer f.Close()

	cfg, err := LoadFromJSON(f)
	if err != nil {
		log.Warningf("config %s invalid, using defaults: %v", path, err)
		return Default()
	}
	return cfg
}

// LoadOrDefault is Load without an error: invalid input yields the defaults.
func LoadOrDefault(v any) Config {
	cfg, err := Load(v)
	if err != nil {
		log.Warningf("invalid configuration, using defaults: %v", err)
		return Default()
	}
	return cfg
}

func (c Config) clone() Config {
	return Config{
		TemplateRoots:     append([]string(nil), c.TemplateRoots...),
		DefaultExtensions: append([]string(nil), c.DefaultExtensions...),
		IgnoreGlobs:       append([]string(nil), c.IgnoreGlobs...),
	}
}

// normalized drops empty entries, gives every extension a leading dot and
// removes duplicate extensions while keeping their configured order.
func (c Config) normalized() Config {
	out := Config{}
	for _, r := range c.TemplateRoots {
		if r = strings.TrimSpace(r); r != "" {
			out.TemplateRoots = append(out.TemplateRoots, r)
		}
	}

	seen := make(map[string]struct{}, len(c.DefaultExtensions))
	for _, ext := range c.DefaultExtensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out.DefaultExtensions = append(out.DefaultExtensions, ext)
	}

	for _, g := range c.IgnoreGlobs {
		if g = strings.TrimSpace(g); g != "" {
			out.IgnoreGlobs = append(out.IgnoreGlobs, g)
		}
	}
	return out
}
