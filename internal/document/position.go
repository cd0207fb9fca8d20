package document

import (
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Lines maps between byte offsets and LSP positions, whose characters count
// UTF-16 code units.
type Lines struct {
	text   string
	starts []int
}

// NewLines indexes the line starts of text.
func NewLines(text string) *Lines {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Lines{text: text, starts: starts}
}

// Offset computes the byte offset of pos. Lines and characters past the end
// are clamped.
func (l *Lines) Offset(pos protocol.Position) int {
	line := int(pos.Line)
	if line >= len(l.starts) {
		return len(l.text)
	}
	start := l.starts[line]
	end := len(l.text)
	if line+1 < len(l.starts) {
		end = l.starts[line+1] - 1
	}

	// Traverse runes in target line to match UTF-16 character count
	var units uint32
	offset := start
	for offset < end {
		r, size := utf8.DecodeRuneInString(l.text[offset:end])
		// Each codepoint uses 1 or 2 UTF-16 code units
		n := uint32(1)
		if r > 0xFFFF {
			n = 2
		}
		if units+n > pos.Character {
			break
		}
		units += n
		offset += size
	}
	return offset
}

// Position converts a byte offset into an LSP position.
func (l *Lines) Position(offset int) protocol.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(l.text) {
		offset = len(l.text)
	}
	line := searchLine(l.starts, offset)

	var units uint32
	for _, r := range l.text[l.starts[line]:offset] {
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return protocol.Position{Line: uint32(line), Character: units}
}

// Range converts a byte span into an LSP range.
func (l *Lines) Range(start, end int) protocol.Range {
	return protocol.Range{Start: l.Position(start), End: l.Position(end)}
}

func searchLine(starts []int, offset int) int {
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// ApplyChange applies one content change event to text. A change without a
// range replaces the whole text.
func ApplyChange(text string, change any) (string, bool) {
	switch c := change.(type) {
	case protocol.TextDocumentContentChangeEventWhole:
		return c.Text, true
	case *protocol.TextDocumentContentChangeEventWhole:
		return c.Text, true
	case protocol.TextDocumentContentChangeEvent:
		return applyRange(text, c), true
	case *protocol.TextDocumentContentChangeEvent:
		return applyRange(text, *c), true
	}
	return text, false
}

func applyRange(text string, c protocol.TextDocumentContentChangeEvent) string {
	if c.Range == nil {
		return c.Text
	}
	lines := NewLines(text)
	start := lines.Offset(c.Range.Start)
	end := lines.Offset(c.Range.End)
	if end < start {
		start, end = end, start
	}
	return text[:start] + c.Text + text[end:]
}
