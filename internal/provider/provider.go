// Package provider answers editor requests about a single template: its
// diagnostics, completions, definitions, hovers, links and symbols.
package provider

import (
	"fmt"
	"path/filepath"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"trellis/internal/config"
	"trellis/internal/document"
	"trellis/internal/parser"
	"trellis/internal/resolver"
)

// Source labels every diagnostic published by trellis.
const Source = "trellis"

// Resolver is what the providers need from resolution.
type Resolver interface {
	Explain(from, raw string) (resolver.Resolution, bool)
	Snapshot() *config.Snapshot
}

// Validate returns one warning per unresolved reference in text, covering
// exactly the written target.
func Validate(path, text string, r Resolver) []protocol.Diagnostic {
	lines := document.NewLines(text)
	diagnostics := []protocol.Diagnostic{}
	severity := protocol.DiagnosticSeverityWarning
	source := Source

	for _, ref := range parser.FindReferences(text) {
		if _, ok := r.Explain(path, ref.Target); ok {
			continue
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    lines.Range(ref.PathStart, ref.PathEnd),
			Severity: &severity,
			Source:   &source,
			Message:  UnresolvedMessage(ref),
		})
	}
	return diagnostics
}

// UnresolvedMessage describes an unresolved reference.
func UnresolvedMessage(ref parser.Reference) string {
	if ref.Kind.Relationship() {
		return fmt.Sprintf("Cannot resolve @rel %s target %q", ref.Kind, ref.Target)
	}
	return fmt.Sprintf("Cannot resolve template %q", ref.Target)
}

// Definition returns the location of the file referenced at offset.
func Definition(path, text string, offset int, r Resolver) (*protocol.Location, bool) {
	ref, ok := parser.ReferenceAt(parser.FindReferences(text), offset)
	if !ok {
		return nil, false
	}
	res, ok := r.Explain(path, ref.Target)
	if !ok {
		return nil, false
	}
	return &protocol.Location{
		URI:   document.PathToURI(res.Path),
		Range: protocol.Range{},
	}, true
}

// Hover describes the reference at offset and what it resolves to.
func Hover(path, text string, offset int, r Resolver) (*protocol.Hover, bool) {
	ref, ok := parser.ReferenceAt(parser.FindReferences(text), offset)
	if !ok {
		return nil, false
	}
	res, resolved := r.Explain(path, ref.Target)

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** `%s`\n\n", ref.Kind, ref.Target)
	if !resolved {
		b.WriteString("unresolved")
	} else {
		snap := r.Snapshot()
		fmt.Fprintf(&b, "→ `%s` (%s", displayPath(snap, res.Path), res.Step)
		if sp, ok := snap.SpaceFor(res.Path); ok {
			fmt.Fprintf(&b, ", space %s", sp.Name)
		}
		b.WriteString(")")
		if len(res.Alternatives) > 0 {
			b.WriteString("\n\nAlso matches:\n")
			for _, alt := range res.Alternatives {
				fmt.Fprintf(&b, "- `%s`\n", displayPath(snap, alt))
			}
		}
	}

	rng := document.NewLines(text).Range(ref.PathStart, ref.PathEnd)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: strings.TrimRight(b.String(), "\n"),
		},
		Range: &rng,
	}, true
}

// DocumentLinks returns a link for every resolved reference.
func DocumentLinks(path, text string, r Resolver) []protocol.DocumentLink {
	lines := document.NewLines(text)
	links := []protocol.DocumentLink{}
	for _, ref := range parser.FindReferences(text) {
		res, ok := r.Explain(path, ref.Target)
		if !ok {
			continue
		}
		target := document.PathToURI(res.Path)
		tooltip := displayPath(r.Snapshot(), res.Path)
		links = append(links, protocol.DocumentLink{
			Range:   lines.Range(ref.PathStart, ref.PathEnd),
			Target:  &target,
			Tooltip: &tooltip,
		})
	}
	return links
}

// displayPath shows path relative to the root that owns it.
func displayPath(snap *config.Snapshot, path string) string {
	if root, ok := snap.RootFor(path); ok {
		return resolver.Relative(root, path)
	}
	return resolver.Relative(snap.Root(), path)
}

// inContentDir reports whether path lies below a content folder of root.
func inContentDir(root, path string) bool {
	rel := resolver.Relative(root, path)
	first, _, found := strings.Cut(rel, "/")
	if !found {
		return false
	}
	for _, dir := range resolver.ContentDirs {
		if first == dir {
			return true
		}
	}
	return false
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
