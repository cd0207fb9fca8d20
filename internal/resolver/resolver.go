// Package resolver turns the target of a template reference into a file on
// disk. It never fails: anything it cannot find is simply unresolved.
package resolver

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"trellis/internal/config"
	"trellis/internal/workspace"
)

var log = commonlog.GetLogger("trellis.resolver")

// ContentDirs are the conventional folders searched when a reference omits
// its folder.
var ContentDirs = []string{"pages", "components", "elements"}

// dynamicDelimiters mark a target computed at render time.
const dynamicDelimiters = "{}%"

// Step names the part of the search that found a file.
type Step string

const (
	StepAbsolute   Step = "absolute"
	StepRelative   Step = "relative"
	StepRoot       Step = "root"
	StepContentDir Step = "content-dir"
	StepBasename   Step = "basename"
)

// Resolution is a resolved reference. Root is the search root that matched,
// empty for the absolute and relative steps. Alternatives are the other
// files a bare name could have meant, in tie-break order.
type Resolution struct {
	Path         string
	Step         Step
	Root         string
	Alternatives []string
}

// Resolver resolves references against one configuration snapshot.
type Resolver struct {
	snap *config.Snapshot
	fsys workspace.FS
}

// New returns a resolver for snap reading through fsys.
func New(snap *config.Snapshot, fsys workspace.FS) *Resolver {
	return &Resolver{snap: snap, fsys: fsys}
}

// Snapshot is the configuration this resolver was built for.
func (r *Resolver) Snapshot() *config.Snapshot { return r.snap }

// Resolve returns the file raw refers to when written in from.
func (r *Resolver) Resolve(from, raw string) (string, bool) {
	res, ok := r.Explain(from, raw)
	return res.Path, ok
}

// Explain is Resolve reporting how the file was found. The first step with
// an existing file wins:
//
//  1. an absolute candidate as written
//  2. every candidate next to from
//  3. root/cand, then root/{pages,components,elements}/cand for each search
//     root, extensions in configured order within one location
//  4. for a bare name, the shallowest file with a matching name anywhere
//     below the content folders of the search roots
//
// The search roots are the space root of from when it lies in a space, else
// every configured root.
func (r *Resolver) Explain(from, raw string) (Resolution, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || IsDynamic(raw) || strings.HasSuffix(raw, "/") || strings.HasSuffix(raw, `\`) {
		return Resolution{}, false
	}
	from = filepath.Clean(from)
	cands := Candidates(raw, r.snap.Extensions())

	local := make([]string, 0, len(cands))
	for _, cand := range cands {
		if filepath.IsAbs(cand) {
			if r.isFile(cand) {
				return Resolution{Path: filepath.Clean(cand), Step: StepAbsolute}, true
			}
			// "/partials/x" is root relative
			cand = strings.TrimLeft(cand, `/\`)
		} else if path := filepath.Join(filepath.Dir(from), cand); r.isFile(path) {
			return Resolution{Path: path, Step: StepRelative}, true
		}
		local = append(local, cand)
	}

	roots := r.snap.SearchRoots(from)
	for _, root := range roots {
		if res, ok := r.searchRoot(root, local); ok {
			return res, true
		}
	}

	if IsBareName(raw) {
		if res, ok := r.searchBasename(roots, cands); ok {
			return res, true
		}
	}

	log.Debugf("unresolved %q from %s", raw, from)
	return Resolution{}, false
}

func (r *Resolver) searchRoot(root string, cands []string) (Resolution, bool) {
	for _, cand := range cands {
		if path := filepath.Join(root, cand); r.indexable(path) {
			return Resolution{Path: path, Step: StepRoot, Root: root}, true
		}
	}
	for _, dir := range ContentDirs {
		for _, cand := range cands {
			if path := filepath.Join(root, dir, cand); r.indexable(path) {
				return Resolution{Path: path, Step: StepContentDir, Root: root}, true
			}
		}
	}
	return Resolution{}, false
}

type match struct {
	root  int
	ext   int
	depth int
	path  string
}

// searchBasename walks the content folders of every root for files named
// like one of cands. Matches are ordered by root, then candidate order, then
// depth below the content folder, then path.
func (r *Resolver) searchBasename(roots []string, cands []string) (Resolution, bool) {
	want := make(map[string]int, len(cands))
	for n, cand := range cands {
		if _, ok := want[cand]; !ok {
			want[cand] = n
		}
	}

	var matches []match
	for ri, root := range roots {
		for _, dir := range ContentDirs {
			base := filepath.Join(root, dir)
			_ = r.fsys.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() {
					if path != base && r.snap.IgnoredDir(path) {
						return fs.SkipDir
					}
					return nil
				}
				n, ok := want[d.Name()]
				if !ok || r.snap.Ignored(path) {
					return nil
				}
				rel, _ := filepath.Rel(base, path)
				matches = append(matches, match{
					root:  ri,
					ext:   n,
					depth: strings.Count(rel, string(filepath.Separator)),
					path:  path,
				})
				return nil
			})
		}
	}
	if len(matches) == 0 {
		return Resolution{}, false
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.root != b.root {
			return a.root < b.root
		}
		if a.ext != b.ext {
			return a.ext < b.ext
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.path < b.path
	})

	res := Resolution{Path: matches[0].path, Step: StepBasename, Root: roots[matches[0].root]}
	for _, m := range matches[1:] {
		res.Alternatives = append(res.Alternatives, m.path)
	}
	return res, true
}

func (r *Resolver) isFile(path string) bool {
	return workspace.IsFile(r.fsys, path)
}

// indexable is isFile for files the ignore globs leave alone.
func (r *Resolver) indexable(path string) bool {
	return !r.snap.Ignored(path) && r.isFile(path)
}

// IsDynamic reports whether raw contains a template delimiter and so is
// computed at render time.
func IsDynamic(raw string) bool {
	return strings.ContainsAny(raw, dynamicDelimiters)
}

// IsBareName reports whether raw has no path separator.
func IsBareName(raw string) bool {
	return !strings.ContainsAny(raw, `/\`)
}

// Candidates returns the file names raw may stand for: raw itself when it
// has an extension, else raw with each extension appended in order.
func Candidates(raw string, exts []string) []string {
	raw = filepath.FromSlash(raw)
	if filepath.Ext(raw) != "" {
		return []string{raw}
	}
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		out = append(out, raw+ext)
	}
	return out
}

// Relative returns path relative to root with forward slashes, or path
// itself when it is not below root.
func Relative(root, path string) string {
	if root == "" || !config.Within(root, path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Describe renders a resolution for humans.
func (res Resolution) Describe() string {
	if res.Root == "" {
		return fmt.Sprintf("%s (%s)", res.Path, res.Step)
	}
	return fmt.Sprintf("%s (%s in %s)", Relative(res.Root, res.Path), res.Step, res.Root)
}
