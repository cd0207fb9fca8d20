package project

import (
	"context"
	"errors"
	"sort"

	"trellis/internal/index"
	"trellis/internal/parser"
	"trellis/internal/scanner"
	"trellis/internal/scheduler"
	"trellis/internal/store"
)

// indexCurrent indexes the links of whatever generation is current when
// it runs, so a run queued for an older generation still serves the newest.
func (p *Project) indexCurrent() error {
	st := p.state.Load()
	if st == nil {
		return nil
	}
	return p.indexLinks(st.gen, p.clear.Swap(false))
}

// indexLinks brings the link store in line with the index. Unless full is
// set, files whose modification time matches the stored one are skipped.
// The run stops as soon as gen is no longer current.
func (p *Project) indexLinks(gen uint64, full bool) error {
	st := p.state.Load()
	if st == nil || st.gen != gen {
		if full {
			p.clear.Store(true)
		}
		return nil
	}
	if full {
		if err := p.store.Clear(); err != nil {
			p.clear.Store(true)
			return err
		}
	}

	files := p.index.List()
	indexed := make(map[string]struct{}, len(files))
	for _, f := range files {
		indexed[f] = struct{}{}
	}

	records, err := p.store.AllFiles()
	if err != nil {
		return err
	}
	stored := make(map[string]int64, len(records))
	todo := map[string]struct{}{}
	for _, rec := range records {
		if _, ok := indexed[rec.Path]; ok {
			stored[rec.Path] = rec.LastModified
			continue
		}
		// gone since the links were stored; whatever pointed at it changes
		back, err := p.store.GetBacklinks(rec.Path)
		if err != nil {
			log.Warningf("listing backlinks of %s: %v", rec.Path, err)
		}
		for _, l := range back {
			todo[l.Source] = struct{}{}
		}
		if err := p.store.DeleteFile(rec.Path); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	// new files may satisfy references that failed before
	unresolved, err := p.store.UnresolvedSources()
	if err != nil {
		log.Warningf("listing unresolved links: %v", err)
	}
	for _, src := range unresolved {
		todo[src] = struct{}{}
	}

	for _, f := range files {
		if !p.Current(gen) {
			log.Debugf("link indexing of generation %d abandoned", gen)
			p.clear.Store(true)
			return nil
		}
		if _, ok := todo[f]; ok {
			continue
		}
		if mtime := p.modTime(f); mtime == 0 || stored[f] != mtime {
			todo[f] = struct{}{}
		}
	}

	n, err := p.reindex(gen, keys(todo, indexed))
	if err != nil {
		return err
	}
	if !p.Current(gen) {
		// links of a stale resolver may have been stored with fresh mtimes
		p.clear.Store(true)
		return nil
	}
	log.Infof("generation %d: links of %d of %d templates updated", gen, n, len(files))
	p.notify(Change{Generation: gen, Reconfigured: true})
	return nil
}

// reindex parses and resolves paths, storing their links. It returns how
// many files were stored before gen went stale or the list ran out.
func (p *Project) reindex(gen uint64, paths []string) (int, error) {
	st := p.state.Load()
	if st == nil || st.gen != gen || len(paths) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	var stored int
	var firstErr error
	overlay := p.overlayFunc()
	var fromDisk []string
	for _, path := range paths {
		if text, ok := overlay(path); ok {
			if err := p.storeLinks(st, path, text, 0); err != nil && firstErr == nil {
				firstErr = err
			}
			stored++
			continue
		}
		fromDisk = append(fromDisk, path)
	}

	err := scanner.Read(ctx, p.ws, fromDisk, func(path string, data []byte) {
		if !p.Current(gen) {
			cancel()
			return
		}
		if err := p.storeLinks(st, path, string(data), p.modTime(path)); err != nil && firstErr == nil {
			firstErr = err
		}
		stored++
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return stored, err
	}
	return stored, firstErr
}

// storeLinks records the references of one template.
func (p *Project) storeLinks(st *state, path, text string, mtime int64) error {
	refs := parser.FindReferences(text)
	links := make([]store.LinkRecord, 0, len(refs))
	for _, ref := range refs {
		target, _ := st.resolver.Resolve(path, ref.Target)
		links = append(links, store.LinkRecord{
			Source:    path,
			Target:    target,
			Raw:       ref.Target,
			Kind:      string(ref.Kind),
			PathStart: ref.PathStart,
			PathEnd:   ref.PathEnd,
		})
	}
	return p.store.ReplaceFile(store.FileRecord{Path: path, LastModified: mtime}, links)
}

// UpdateDocument stores the links of an open, possibly unsaved document.
// Its recorded modification time is zero so the next startup rereads it.
func (p *Project) UpdateDocument(path, text string) error {
	st := p.state.Load()
	if st == nil || !p.index.Has(path) {
		return nil
	}
	return p.storeLinks(st, path, text, 0)
}

// follow turns index membership changes into link store updates.
func (p *Project) follow(events <-chan index.Event) {
	for ev := range events {
		p.mu.Lock()
		p.events = append(p.events, ev)
		p.mu.Unlock()
		p.sched.Schedule(scheduler.Task{Name: "index-events", Execute: p.drainEvents})
	}
}

func (p *Project) drainEvents() error {
	p.mu.Lock()
	events := p.events
	p.events = nil
	p.mu.Unlock()
	if len(events) == 0 {
		return nil
	}

	gen := p.Generation()
	todo := map[string]struct{}{}
	added := false
	for _, ev := range events {
		switch ev.Kind {
		case index.Removed:
			back, err := p.store.GetBacklinks(ev.Path)
			if err != nil {
				log.Warningf("listing backlinks of %s: %v", ev.Path, err)
			}
			for _, l := range back {
				todo[l.Source] = struct{}{}
			}
			if err := p.store.DeleteFile(ev.Path); err != nil && !errors.Is(err, store.ErrNotFound) {
				log.Warningf("forgetting %s: %v", ev.Path, err)
			}
			delete(todo, ev.Path)
		case index.Added:
			added = true
			todo[ev.Path] = struct{}{}
		}
	}
	if added {
		unresolved, err := p.store.UnresolvedSources()
		if err != nil {
			log.Warningf("listing unresolved links: %v", err)
		}
		for _, src := range unresolved {
			todo[src] = struct{}{}
		}
	}

	indexed := map[string]struct{}{}
	for path := range todo {
		if p.index.Has(path) {
			indexed[path] = struct{}{}
		}
	}
	paths := keys(todo, indexed)
	if _, err := p.reindex(gen, paths); err != nil {
		return err
	}
	if p.Current(gen) {
		p.notify(Change{Generation: gen, Paths: paths})
	}
	return nil
}

func (p *Project) overlayFunc() func(string) (string, bool) {
	p.mu.Lock()
	fn := p.overlay
	p.mu.Unlock()
	if fn == nil {
		return func(string) (string, bool) { return "", false }
	}
	return fn
}

func (p *Project) modTime(path string) int64 {
	info, err := p.ws.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// keys returns the members of set that are also in keep, sorted.
func keys(set, keep map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if _, ok := keep[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
