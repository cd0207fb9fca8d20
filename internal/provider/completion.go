package provider

import (
	"path/filepath"
	"sort"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"trellis/internal/config"
	"trellis/internal/document"
	"trellis/internal/parser"
)

// Complete offers reference targets when offset is inside one. files is the
// indexed template set. Names that identify a single candidate come first,
// followed by every candidate's root relative path.
func Complete(path, text string, offset int, snap *config.Snapshot, files []string) ([]protocol.CompletionItem, bool) {
	cc, ok := parser.CompletionContextAt(text, offset)
	if !ok {
		return nil, false
	}

	type candidate struct {
		path  string
		rel   string
		label string
	}
	var cands []candidate
	counts := map[string]int{}

	space, inSpace := snap.SpaceFor(path)
	self := filepath.Clean(path)
	for _, f := range files {
		if f == self {
			continue
		}
		if inSpace {
			sp, ok := snap.SpaceFor(f)
			if !ok || sp.Name != space.Name {
				continue
			}
		}
		root, ok := snap.RootFor(f)
		if !ok || !inContentDir(root, f) {
			continue
		}
		c := candidate{path: f, rel: displayPath(snap, f), label: stem(f)}
		cands = append(cands, c)
		counts[c.label]++
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].rel < cands[j].rel })

	rng := document.NewLines(text).Range(cc.Start, cc.End)
	kind := protocol.CompletionItemKindFile
	items := []protocol.CompletionItem{}
	item := func(label, detail, sortKey string) protocol.CompletionItem {
		return protocol.CompletionItem{
			Label:    label,
			Kind:     &kind,
			Detail:   &detail,
			SortText: &sortKey,
			TextEdit: protocol.TextEdit{Range: rng, NewText: label},
		}
	}

	for _, c := range cands {
		if counts[c.label] == 1 {
			items = append(items, item(c.label, c.rel, "0_"+c.label))
		}
	}
	for _, c := range cands {
		items = append(items, item(c.rel, string(cc.Kind), "1_"+c.rel))
	}
	return items, true
}
