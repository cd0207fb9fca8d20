package server

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"trellis/internal/document"
	"trellis/internal/project"
	"trellis/internal/provider"
	"trellis/internal/resolver"
)

const (
	maxSymbolResults = 128
	// tolerate up to 2 typos
	symbolErrors = 2
)

// errNotReady is returned for requests that arrive before initialize.
var errNotReady = errors.New("server not initialized")

// source returns the project together with the path and text of uri. Open
// documents are read from memory, anything else from disk.
func (s *Server) source(uri string) (*project.Project, string, string, error) {
	p := s.current()
	if p == nil {
		return nil, "", "", errNotReady
	}
	doc, err := s.docs.Get(uri)
	if err == nil {
		return p, doc.Path, doc.Text, nil
	}
	if !errors.Is(err, document.ErrNotOpen) {
		return nil, "", "", err
	}
	path := document.URIToPath(uri)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", "", err
	}
	return p, path, string(data), nil
}

func (s *Server) textDocumentDefinition(
	context *glsp.Context,
	params *protocol.DefinitionParams,
) (any, error) {
	p, path, text, err := s.source(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	offset := document.NewLines(text).Offset(params.Position)
	if loc, ok := provider.Definition(path, text, offset, p); ok {
		return *loc, nil
	}
	return nil, nil
}

func (s *Server) textDocumentHover(
	context *glsp.Context,
	params *protocol.HoverParams,
) (*protocol.Hover, error) {
	p, path, text, err := s.source(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	offset := document.NewLines(text).Offset(params.Position)
	if hover, ok := provider.Hover(path, text, offset, p); ok {
		return hover, nil
	}
	return nil, nil
}

func (s *Server) textDocumentDocumentLink(
	context *glsp.Context,
	params *protocol.DocumentLinkParams,
) ([]protocol.DocumentLink, error) {
	p, path, text, err := s.source(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return provider.DocumentLinks(path, text, p), nil
}

func (s *Server) textDocumentCompletion(
	context *glsp.Context,
	params *protocol.CompletionParams,
) (any, error) {
	p, path, text, err := s.source(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	snap := p.Snapshot()
	if snap == nil {
		return nil, nil
	}
	offset := document.NewLines(text).Offset(params.Position)
	items, ok := provider.Complete(path, text, offset, snap, p.Files())
	if !ok {
		return nil, nil
	}
	return items, nil
}

func (s *Server) textDocumentDocumentSymbol(
	context *glsp.Context,
	params *protocol.DocumentSymbolParams,
) (any, error) {
	_, _, text, err := s.source(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return provider.DocumentSymbols(text), nil
}

func (s *Server) textDocumentReferences(
	context *glsp.Context,
	params *protocol.ReferenceParams,
) ([]protocol.Location, error) {
	p := s.current()
	if p == nil {
		return nil, errNotReady
	}
	target := document.URIToPath(params.TextDocument.URI)

	refs, err := p.Backlinks(target)
	if err != nil {
		return nil, err
	}

	lines := map[string]*document.Lines{}
	locations := []protocol.Location{}
	for _, ref := range refs {
		l, ok := lines[ref.Source]
		if !ok {
			uri := document.PathToURI(ref.Source)
			_, _, text, err := s.source(uri)
			if err != nil {
				log.Warningf("reading %s: %v", ref.Source, err)
				continue
			}
			l = document.NewLines(text)
			lines[ref.Source] = l
		}
		locations = append(locations, protocol.Location{
			URI:   document.PathToURI(ref.Source),
			Range: l.Range(ref.PathStart, ref.PathEnd),
		})
	}

	return locations, nil
}

func (s *Server) workspaceSymbol(
	context *glsp.Context,
	params *protocol.WorkspaceSymbolParams,
) ([]protocol.SymbolInformation, error) {
	p := s.current()
	if p == nil {
		return nil, errNotReady
	}
	snap := p.Snapshot()
	if snap == nil {
		return nil, nil
	}

	files := p.Files()
	titles := make([]string, 0, len(files))
	uris := make(map[string]string, len(files))
	for _, f := range files {
		t := f
		if root, ok := snap.RootFor(f); ok {
			t = resolver.Relative(root, f)
		}
		uris[t] = document.PathToURI(f)
		titles = append(titles, t)
	}

	var hits []string
	if params.Query == "" {
		sort.Strings(titles)
		hits = titles[:min(len(titles), maxSymbolResults)]
	} else {
		hits = filterByBitapFuzzyParallel(params.Query, titles, symbolErrors, maxSymbolResults)
		sort.Strings(hits)
	}

	symbols := []protocol.SymbolInformation{}
	for _, h := range hits {
		symbols = append(symbols, protocol.SymbolInformation{
			Name:     h,
			Kind:     protocol.SymbolKindFile,
			Location: protocol.Location{URI: uris[h]},
		})
	}
	return symbols, nil
}

// filterByBitapFuzzyParallel filters paths by approximate Bitap matching
// with k errors. Matching ignores case.
func filterByBitapFuzzyParallel(pattern string, paths []string, k, maxHits int) []string {
	if utf8.RuneCountInString(pattern) == 0 {
		return nil
	}

	patternRunes := []rune(strings.ToLower(pattern))
	m := len(patternRunes)
	if m > 63 {
		patternRunes = patternRunes[:63]
		m = 63
	}

	var masks [128]uint64
	for i, r := range patternRunes {
		if r < 128 {
			masks[r] |= 1 << uint(i)
		}
	}

	// with k >= m every text would match, so short queries must appear
	// as written
	if k >= m {
		return filterBySubstring(string(patternRunes), paths, maxHits)
	}
	highest := uint64(1) << uint(m-1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan string, maxHits)
	var hitCount int32

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))

	for _, s := range paths {
		if atomic.LoadInt32(&hitCount) >= int32(maxHits) || ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(text string) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			if bitapFuzzyMatch(strings.ToLower(text), masks, highest, k) {
				count := atomic.AddInt32(&hitCount, 1)
				if count <= int32(maxHits) {
					results <- text
					if count == int32(maxHits) {
						cancel()
					}
				}
			}
		}(s)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var filtered []string
	for s := range results {
		filtered = append(filtered, s)
	}
	return filtered
}

func filterBySubstring(pattern string, paths []string, maxHits int) []string {
	var filtered []string
	for _, p := range paths {
		if len(filtered) == maxHits {
			break
		}
		if strings.Contains(strings.ToLower(p), pattern) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// bitapFuzzyMatch returns true if pattern appears in text within edit
// distance k.
func bitapFuzzyMatch(text string, masks [128]uint64, highest uint64, k int) bool {
	r := make([]uint64, k+1)

	for _, cr := range text {
		var charMask uint64
		if cr < 128 {
			charMask = masks[cr]
		}

		prev := r[0]
		r[0] = ((r[0] << 1) | 1) & charMask

		for d := 1; d <= k; d++ {
			old := r[d]
			match := ((old << 1) | 1) & charMask
			substitution := (prev << 1) | 1
			insertion := prev             // extra character in text
			deletion := (r[d-1] << 1) | 1 // missing character in text
			r[d] = match | substitution | insertion | deletion
			prev = old
		}

		if r[k]&highest != 0 {
			return true
		}
	}
	return false
}
