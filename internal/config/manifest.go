package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ManifestNames are the spaces manifest file names looked up at the
// workspace root, in order.
var ManifestNames = []string{"spaces.json", "spaces.jsonc", "spaces.yaml", "spaces.yml"}

// ErrNoManifest is returned by FindManifest when the workspace has none.
var ErrNoManifest = errors.New("config: no spaces manifest")

// Space maps a name to an isolated template root.
type Space struct {
	Name         string `json:"name"         yaml:"name"`
	TemplateRoot string `json:"templateRoot" yaml:"templateRoot"`
	DistDir      string `json:"distDir"      yaml:"distDir,omitempty"`
}

// Manifest is the project's list of spaces.
type Manifest struct {
	DefaultSpace string  `json:"defaultSpace" yaml:"defaultSpace"`
	Spaces       []Space `json:"spaces"       yaml:"spaces"`
}

// FindManifest returns the path of the first manifest present under root.
func FindManifest(root string) (string, error) {
	for _, name := range ManifestNames {
		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", ErrNoManifest
}

// IsManifest reports whether path names a spaces manifest of root.
func IsManifest(root, path string) bool {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(root) {
		return false
	}
	base := filepath.Base(path)
	for _, name := range ManifestNames {
		if base == name {
			return true
		}
	}
	return false
}

// LoadManifest decodes a manifest file; the format follows the extension.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ParseManifest(data, filepath.Ext(path))
}

// ParseManifest decodes manifest data. ext selects YAML (".yaml", ".yml")
// or JSON with comments (anything else).
func ParseManifest(data []byte, ext string) (Manifest, error) {
	var m Manifest
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Manifest{}, fmt.Errorf("parse manifest: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
			return Manifest{}, fmt.Errorf("parse manifest: %w", err)
		}
	}

	spaces := m.Spaces[:0]
	for _, s := range m.Spaces {
		s.Name = strings.TrimSpace(s.Name)
		s.TemplateRoot = strings.TrimSpace(s.TemplateRoot)
		if s.Name == "" || s.TemplateRoot == "" {
			continue
		}
		spaces = append(spaces, s)
	}
	m.Spaces = spaces
	return m, nil
}

// DiscoverManifest loads the workspace manifest if there is one. A missing
// or broken manifest yields an empty one.
func DiscoverManifest(root string) Manifest {
	path, err := FindManifest(root)
	if err != nil {
		return Manifest{}
	}
	m, err := LoadManifest(path)
	if err != nil {
		log.Warningf("ignoring spaces manifest: %v", err)
		return Manifest{}
	}
	log.Infof("loaded %d spaces from %s", len(m.Spaces), path)
	return m
}
