// Package project owns the live state of one workspace: the configuration
// snapshot, the resolver built from it, the template index and the link
// store. Every configuration change starts a new generation; work begun
// under an older generation is discarded.
package project

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tliron/commonlog"

	"trellis/internal/config"
	"trellis/internal/index"
	"trellis/internal/resolver"
	"trellis/internal/scheduler"
	"trellis/internal/store"
	"trellis/internal/workspace"
)

var log = commonlog.GetLogger("trellis.project")

const defaultMemoSize = 4096

// Options tune a Project.
type Options struct {
	// Watch follows file creation and deletion under the template roots.
	Watch bool
	// MemoSize bounds the resolution memo. Zero picks a default.
	MemoSize int
}

// Change tells listeners which templates may now resolve differently.
// Reconfigured is set when everything may have changed.
type Change struct {
	Generation   uint64
	Reconfigured bool
	Paths        []string
}

type state struct {
	gen      uint64
	snap     *config.Snapshot
	resolver *resolver.Resolver
}

type memoKey struct {
	gen   uint64
	epoch uint64
	from  string
	raw   string
}

type memoEntry struct {
	res resolver.Resolution
	ok  bool
}

// Project is safe for concurrent use.
type Project struct {
	ws    workspace.Workspace
	index *index.Index
	store store.Store
	sched *scheduler.Scheduler
	memo  *lru.Cache[memoKey, memoEntry]

	gen        atomic.Uint64
	state      atomic.Pointer[state]
	configured atomic.Bool
	// the link store must be cleared before the next link indexing run
	clear atomic.Bool

	mu       sync.Mutex
	events   []index.Event
	onChange func(Change)
	overlay  func(path string) (string, bool)

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a project reading through ws and recording links in st. The
// project owns st from now on. Configure must be called before use.
func New(ws workspace.Workspace, st store.Store, opts Options) *Project {
	size := opts.MemoSize
	if size <= 0 {
		size = defaultMemoSize
	}
	memo, err := lru.New[memoKey, memoEntry](size)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Project{
		ws:     ws,
		index:  index.New(ws, index.Options{Watch: opts.Watch}),
		store:  st,
		sched:  scheduler.NewScheduler(64),
		memo:   memo,
		ctx:    ctx,
		cancel: cancel,
	}
	p.sched.RunScheduler()
	go p.follow(p.index.Subscribe(ctx))
	return p
}

// OnChange registers fn to be called after background work changed what
// some templates resolve to. fn runs on the scheduler.
func (p *Project) OnChange(fn func(Change)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// SetOverlay lets unsaved editor buffers take precedence over the disk
// when links are indexed.
func (p *Project) SetOverlay(fn func(path string) (string, bool)) {
	p.mu.Lock()
	p.overlay = fn
	p.mu.Unlock()
}

// Configure installs snap as a new generation: the resolver is replaced,
// the memo purged, the index rescanned and link indexing scheduled.
func (p *Project) Configure(ctx context.Context, snap *config.Snapshot) uint64 {
	gen := p.gen.Add(1)
	p.state.Store(&state{gen: gen, snap: snap, resolver: resolver.New(snap, p.ws)})
	p.memo.Purge()
	log.Infof("generation %d: %d roots, %d spaces", gen, len(snap.AllRoots()), len(snap.Spaces()))

	p.index.Initialize(ctx, snap)

	// stored links can be trusted only for the configuration they were
	// computed under
	if p.configured.Swap(true) {
		p.clear.Store(true)
	}
	p.sched.Schedule(scheduler.Task{Name: "index-links", Execute: p.indexCurrent})
	return gen
}

// Generation is the current generation.
func (p *Project) Generation() uint64 { return p.gen.Load() }

// Current reports whether gen is still the current generation.
func (p *Project) Current(gen uint64) bool { return p.gen.Load() == gen }

// Snapshot is the current configuration. It is nil before Configure.
func (p *Project) Snapshot() *config.Snapshot {
	if st := p.state.Load(); st != nil {
		return st.snap
	}
	return nil
}

// Index is the template index.
func (p *Project) Index() *index.Index { return p.index }

// Files lists every indexed template.
func (p *Project) Files() []string { return p.index.List() }

// Resolve returns the file raw refers to when written in from.
func (p *Project) Resolve(from, raw string) (string, bool) {
	res, ok := p.Explain(from, raw)
	return res.Path, ok
}

// Explain resolves raw from from under the current generation. Results are
// memoized per generation and index epoch. Misses are never memoized. A
// result computed while the generation moved on is recomputed.
func (p *Project) Explain(from, raw string) (resolver.Resolution, bool) {
	var entry memoEntry
	for attempt := 0; attempt < 3; attempt++ {
		st := p.state.Load()
		if st == nil {
			return resolver.Resolution{}, false
		}
		key := memoKey{gen: st.gen, epoch: p.index.Epoch(), from: from, raw: raw}
		if e, ok := p.memo.Get(key); ok {
			return e.res, e.ok
		}

		entry.res, entry.ok = st.resolver.Explain(from, raw)
		if !p.Current(st.gen) {
			log.Debugf("discarding stale resolution of %q", raw)
			continue
		}
		// files the index does not track can appear without moving the
		// epoch, so only hits are kept
		if entry.ok {
			p.memo.Add(key, entry)
		}
		break
	}
	return entry.res, entry.ok
}

// Apply feeds a file event reported by the editor into the index.
func (p *Project) Apply(ev workspace.Event) {
	p.index.Apply(ev)
}

// Backlinks lists the stored references that resolve to path.
func (p *Project) Backlinks(path string) ([]store.LinkRecord, error) {
	return p.store.GetBacklinks(path)
}

// Wait blocks until all background work scheduled so far has finished.
func (p *Project) Wait() {
	p.sched.Wait()
}

// Close stops background work and closes the index and the store.
func (p *Project) Close() error {
	p.cancel()
	p.gen.Add(1)
	errIndex := p.index.Close()
	p.sched.StopScheduler()
	return errors.Join(errIndex, p.store.Close())
}

func (p *Project) notify(c Change) {
	p.mu.Lock()
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}
