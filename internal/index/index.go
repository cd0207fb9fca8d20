// Package index keeps the set of template files under the configured roots
// and follows it as files are created and deleted.
package index

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"trellis/internal/config"
	"trellis/internal/scanner"
	"trellis/internal/workspace"
)

var log = commonlog.GetLogger("trellis.index")

// EventKind tells whether a path entered or left the index.
type EventKind int

const (
	Added EventKind = iota + 1
	Removed
)

func (k EventKind) String() string {
	if k == Added {
		return "added"
	}
	return "removed"
}

// Event is a membership change. Generation is the initialization the
// change happened under.
type Event struct {
	Kind       EventKind
	Path       string
	Generation uint64
}

// Options tune an Index.
type Options struct {
	// Watch establishes a file watch on the roots after every scan.
	Watch bool
}

// Index is the set of known template paths. All paths are absolute and
// cleaned. It is safe for concurrent use.
type Index struct {
	ws   workspace.Workspace
	opts Options

	mu      sync.RWMutex
	files   map[string]struct{}
	snap    *config.Snapshot
	glob    string
	gen     uint64
	epoch   uint64
	watcher workspace.Watcher

	subsMu sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// New returns an empty index reading through ws.
func New(ws workspace.Workspace, opts Options) *Index {
	return &Index{
		ws:    ws,
		opts:  opts,
		files: make(map[string]struct{}),
		subs:  make(map[int]chan Event),
	}
}

// Initialize replaces the index contents with a full scan of every root of
// snap. A previous watch is disposed before scanning. Failures leave the
// index partial or empty and are only logged.
func (i *Index) Initialize(ctx context.Context, snap *config.Snapshot) uint64 {
	i.mu.Lock()
	i.gen++
	gen := i.gen
	old := i.watcher
	i.watcher = nil
	i.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			log.Warningf("closing previous watch: %v", err)
		}
	}

	glob := extensionGlob(snap.Extensions())
	roots := snap.AllRoots()
	found := make([][]string, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	for n, root := range roots {
		g.Go(func() error {
			return scanner.Scan(gctx, i.ws, root,
				func(path string, d fs.DirEntry) bool {
					if d.IsDir() {
						return snap.IgnoredDir(path)
					}
					return !matches(glob, root, path) || snap.Ignored(path)
				},
				func(path string) {
					found[n] = append(found[n], filepath.Clean(path))
				})
		})
	}
	if err := g.Wait(); err != nil {
		log.Warningf("scan interrupted: %v", err)
	}

	files := make(map[string]struct{})
	for _, list := range found {
		for _, path := range list {
			files[path] = struct{}{}
		}
	}

	i.mu.Lock()
	if i.gen != gen {
		// a newer Initialize already started
		i.mu.Unlock()
		return gen
	}
	i.files = files
	i.snap = snap
	i.glob = glob
	i.epoch++
	i.mu.Unlock()
	log.Infof("indexed %d templates in %d roots", len(files), len(roots))

	if i.opts.Watch && ctx.Err() == nil {
		i.watch(gen, roots)
	}
	return gen
}

func (i *Index) watch(gen uint64, roots []string) {
	w, err := i.ws.Watch(roots)
	if err != nil {
		log.Warningf("cannot watch template roots: %v", err)
		return
	}
	i.mu.Lock()
	if i.gen != gen {
		i.mu.Unlock()
		_ = w.Close()
		return
	}
	i.watcher = w
	i.mu.Unlock()

	go func() {
		for ev := range w.Events() {
			if i.Generation() != gen {
				log.Debugf("dropping stale event %s %s", ev.Op, ev.Path)
				continue
			}
			i.apply(ev, gen)
		}
	}()
}

// Apply feeds a file event from the host into the index. It reports the
// membership changes it caused.
func (i *Index) Apply(ev workspace.Event) []Event {
	return i.apply(ev, i.Generation())
}

func (i *Index) apply(ev workspace.Event, gen uint64) []Event {
	path := filepath.Clean(ev.Path)
	var changes []Event

	switch ev.Op {
	case workspace.Create:
		i.mu.RLock()
		snap, glob := i.snap, i.glob
		i.mu.RUnlock()
		if snap == nil || !i.accepts(snap, glob, path) || !workspace.IsFile(i.ws, path) {
			return nil
		}
		i.mu.Lock()
		if i.gen == gen {
			if _, ok := i.files[path]; !ok {
				i.files[path] = struct{}{}
				i.epoch++
				changes = append(changes, Event{Kind: Added, Path: path, Generation: gen})
			}
		}
		i.mu.Unlock()

	case workspace.Delete:
		prefix := path + string(filepath.Separator)
		i.mu.Lock()
		if i.gen == gen {
			for p := range i.files {
				if p == path || strings.HasPrefix(p, prefix) {
					delete(i.files, p)
					changes = append(changes, Event{Kind: Removed, Path: p, Generation: gen})
				}
			}
			if len(changes) > 0 {
				i.epoch++
			}
		}
		i.mu.Unlock()

	case workspace.Change:
		// content changes do not affect membership
	}

	for _, c := range changes {
		log.Debugf("%s %s", c.Kind, c.Path)
		i.publish(c)
	}
	return changes
}

func (i *Index) accepts(snap *config.Snapshot, glob, path string) bool {
	if snap.Ignored(path) {
		return false
	}
	for _, root := range snap.AllRoots() {
		if config.Within(root, path) && matches(glob, root, path) {
			return true
		}
	}
	return false
}

// List returns every indexed path in lexical order.
func (i *Index) List() []string {
	i.mu.RLock()
	out := make([]string, 0, len(i.files))
	for p := range i.files {
		out = append(out, p)
	}
	i.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Has reports whether path is indexed.
func (i *Index) Has(path string) bool {
	i.mu.RLock()
	_, ok := i.files[filepath.Clean(path)]
	i.mu.RUnlock()
	return ok
}

// Len is the number of indexed paths.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.files)
}

// Generation counts calls to Initialize.
func (i *Index) Generation() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.gen
}

// Epoch changes whenever the indexed set does.
func (i *Index) Epoch() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.epoch
}

// Subscribe delivers membership changes until ctx is done.
func (i *Index) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 256)
	i.subsMu.Lock()
	id := i.nextID
	i.nextID++
	i.subs[id] = ch
	i.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		i.subsMu.Lock()
		if _, ok := i.subs[id]; ok {
			delete(i.subs, id)
			close(ch)
		}
		i.subsMu.Unlock()
	}()
	return ch
}

func (i *Index) publish(ev Event) {
	i.subsMu.Lock()
	defer i.subsMu.Unlock()
	for _, ch := range i.subs {
		select {
		case ch <- ev:
		default:
			log.Warningf("subscriber is slow, dropping %s %s", ev.Kind, ev.Path)
		}
	}
}

// Close stops watching and ends every subscription.
func (i *Index) Close() error {
	i.mu.Lock()
	i.gen++
	w := i.watcher
	i.watcher = nil
	i.mu.Unlock()

	i.subsMu.Lock()
	for id, ch := range i.subs {
		delete(i.subs, id)
		close(ch)
	}
	i.subsMu.Unlock()

	if w != nil {
		return w.Close()
	}
	return nil
}

// extensionGlob builds "**/*.{njk,html}" from the configured extensions.
func extensionGlob(exts []string) string {
	names := make([]string, 0, len(exts))
	for _, ext := range exts {
		names = append(names, escapeMeta(strings.TrimPrefix(ext, ".")))
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return "**/*." + names[0]
	default:
		return "**/*.{" + strings.Join(names, ",") + "}"
	}
}

func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{},\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func matches(glob, root, path string) bool {
	if glob == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	ok, _ := doublestar.Match(glob, filepath.ToSlash(rel))
	return ok
}
