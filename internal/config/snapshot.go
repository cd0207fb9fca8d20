package config

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Snapshot is an immutable, absolutized view of a Config and its spaces.
// A configuration change builds a new Snapshot instead of mutating one.
type Snapshot struct {
	root         string
	roots        []string
	extensions   []string
	ignoreGlobs  []string
	spaces       []Space
	defaultSpace string
}

// NewSnapshot resolves every root of cfg and m against the workspace root.
func NewSnapshot(root string, cfg Config, m Manifest) *Snapshot {
	cfg = cfg.normalized()
	root = absClean(root, "")

	s := &Snapshot{
		root:         root,
		extensions:   cfg.DefaultExtensions,
		defaultSpace: m.DefaultSpace,
	}
	for _, r := range cfg.TemplateRoots {
		s.roots = appendUnique(s.roots, absClean(r, root))
	}
	for _, g := range cfg.IgnoreGlobs {
		if doublestar.ValidatePattern(g) {
			s.ignoreGlobs = append(s.ignoreGlobs, filepath.ToSlash(g))
		} else {
			log.Warningf("ignoring invalid ignore glob %q", g)
		}
	}
	for _, sp := range m.Spaces {
		sp.TemplateRoot = absClean(sp.TemplateRoot, root)
		if sp.DistDir != "" {
			sp.DistDir = absClean(sp.DistDir, root)
		}
		s.spaces = append(s.spaces, sp)
	}
	return s
}

// Root is the workspace root.
func (s *Snapshot) Root() string { return s.root }

// TemplateRoots are the configured template roots.
func (s *Snapshot) TemplateRoots() []string { return append([]string(nil), s.roots...) }

// Extensions are the default extensions in configured order.
func (s *Snapshot) Extensions() []string { return append([]string(nil), s.extensions...) }

// Spaces are the manifest's spaces with absolute roots.
func (s *Snapshot) Spaces() []Space { return append([]Space(nil), s.spaces...) }

// DefaultSpace is the manifest's default space name.
func (s *Snapshot) DefaultSpace() string { return s.defaultSpace }

// AllRoots lists template roots followed by space roots, without duplicates.
func (s *Snapshot) AllRoots() []string {
	out := append([]string(nil), s.roots...)
	for _, sp := range s.spaces {
		out = appendUnique(out, sp.TemplateRoot)
	}
	return out
}

// SpaceFor returns the space whose root contains path. When several space
// roots contain it the most specific one wins.
func (s *Snapshot) SpaceFor(path string) (Space, bool) {
	path = absClean(path, s.root)
	var best Space
	found := false
	for _, sp := range s.spaces {
		if !Within(sp.TemplateRoot, path) {
			continue
		}
		if !found || len(sp.TemplateRoot) > len(best.TemplateRoot) {
			best, found = sp, true
		}
	}
	return best, found
}

// SearchRoots are the roots a reference from path may be resolved against:
// its space root alone, or every configured root when it has no space.
func (s *Snapshot) SearchRoots(path string) []string {
	if sp, ok := s.SpaceFor(path); ok {
		return []string{sp.TemplateRoot}
	}
	return s.AllRoots()
}

// RootFor returns the root that owns path: its space root, else the most
// specific configured root containing it.
func (s *Snapshot) RootFor(path string) (string, bool) {
	if sp, ok := s.SpaceFor(path); ok {
		return sp.TemplateRoot, true
	}
	path = absClean(path, s.root)
	best := ""
	for _, r := range s.AllRoots() {
		if Within(r, path) && len(r) > len(best) {
			best = r
		}
	}
	return best, best != ""
}

// Ignored reports whether path matches an ignore glob. Globs are matched
// against the path relative to its space root, else the workspace root.
func (s *Snapshot) Ignored(path string) bool {
	rel, ok := s.ignoreRel(path)
	if !ok {
		return false
	}
	return s.matchIgnore(rel)
}

// IgnoredDir reports whether every file below dir is ignored, which holds
// for the usual "**/name/**" style patterns.
func (s *Snapshot) IgnoredDir(dir string) bool {
	rel, ok := s.ignoreRel(dir)
	if !ok || rel == "." {
		return false
	}
	return s.matchIgnore(rel) || s.matchIgnore(rel+"/.")
}

func (s *Snapshot) ignoreRel(path string) (string, bool) {
	if len(s.ignoreGlobs) == 0 {
		return "", false
	}
	path = absClean(path, s.root)
	base := s.root
	if sp, ok := s.SpaceFor(path); ok {
		base = sp.TemplateRoot
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path), true
	}
	return filepath.ToSlash(rel), true
}

func (s *Snapshot) matchIgnore(rel string) bool {
	for _, g := range s.ignoreGlobs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// Within reports whether path equals root or lies below it.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func absClean(p, base string) string {
	if !filepath.IsAbs(p) {
		if base == "" {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
		}
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
