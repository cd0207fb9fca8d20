package provider

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"trellis/internal/document"
	"trellis/internal/parser"
)

// DocumentSymbols outlines the blocks and macros of text. Definitions nested
// inside another become its children.
func DocumentSymbols(text string) []protocol.DocumentSymbol {
	lines := document.NewLines(text)
	defs := parser.FindDefinitions(text)
	symbols, _ := nestSymbols(lines, defs, 0, len(text)+1)
	return symbols
}

// nestSymbols turns defs[0:] that start before limit into symbols and
// returns how many definitions it consumed.
func nestSymbols(lines *document.Lines, defs []parser.Definition, i, limit int) ([]protocol.DocumentSymbol, int) {
	symbols := []protocol.DocumentSymbol{}
	for i < len(defs) && defs[i].Start < limit {
		d := defs[i]
		// an unclosed opener ends at its own tag and so has no children
		children, next := nestSymbols(lines, defs, i+1, d.End)
		detail := string(d.Kind)
		kind := protocol.SymbolKindNamespace
		if d.Kind == parser.Macro {
			kind = protocol.SymbolKindFunction
		}
		symbols = append(symbols, protocol.DocumentSymbol{
			Name:           d.Name,
			Detail:         &detail,
			Kind:           kind,
			Range:          lines.Range(d.Start, d.End),
			SelectionRange: lines.Range(d.Start, d.End),
			Children:       children,
		})
		i = next
	}
	return symbols, i
}
