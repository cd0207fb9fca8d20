package document_test

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"trellis/internal/document"
)

func pos(line, char uint32) protocol.Position {
	return protocol.Position{Line: line, Character: char}
}

func TestLinesRoundTrip(t *testing.T) {
	// "é" is two bytes and one unit, "😀" four bytes and two units
	text := "ab\né😀x\n\nlast"
	lines := document.NewLines(text)

	tests := []struct {
		offset int
		pos    protocol.Position
	}{
		{0, pos(0, 0)},
		{2, pos(0, 2)},
		{3, pos(1, 0)},
		{5, pos(1, 1)},
		{9, pos(1, 3)},
		{10, pos(1, 4)},
		{11, pos(2, 0)},
		{12, pos(3, 0)},
		{16, pos(3, 4)},
	}
	for _, tt := range tests {
		if got := lines.Position(tt.offset); got != tt.pos {
			t.Errorf("Position(%d) = %+v, want %+v", tt.offset, got, tt.pos)
		}
		if got := lines.Offset(tt.pos); got != tt.offset {
			t.Errorf("Offset(%+v) = %d, want %d", tt.pos, got, tt.offset)
		}
	}
}

func TestLinesClamp(t *testing.T) {
	lines := document.NewLines("ab\ncd")
	if got := lines.Offset(pos(0, 99)); got != 2 {
		t.Errorf("Offset past line end = %d, want 2", got)
	}
	if got := lines.Offset(pos(7, 0)); got != 5 {
		t.Errorf("Offset past last line = %d, want 5", got)
	}
	if got := lines.Position(99); got != pos(1, 2) {
		t.Errorf("Position past end = %+v", got)
	}
	// a position inside a surrogate pair stays before the rune
	if got := document.NewLines("😀").Offset(pos(0, 1)); got != 0 {
		t.Errorf("Offset inside surrogate pair = %d, want 0", got)
	}
}

func TestManagerUpdateIncremental(t *testing.T) {
	m := document.NewManager()
	uri := document.PathToURI(filepath.Join(t.TempDir(), "a.njk"))
	m.Open(uri, 1, "{% include \"a\" %}\nhello")

	rng := protocol.Range{Start: pos(0, 12), End: pos(0, 13)}
	doc, err := m.Update(uri, 2, []any{
		protocol.TextDocumentContentChangeEvent{Range: &rng, Text: "button"},
		protocol.TextDocumentContentChangeEvent{
			Range: &protocol.Range{Start: pos(1, 5), End: pos(1, 5)},
			Text:  "!",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := "{% include \"button\" %}\nhello!"; doc.Text != want {
		t.Errorf("text = %q, want %q", doc.Text, want)
	}
	if doc.Version != 2 {
		t.Errorf("version = %d", doc.Version)
	}

	doc, err = m.Update(uri, 3, []any{protocol.TextDocumentContentChangeEventWhole{Text: "fresh"}})
	if err != nil || doc.Text != "fresh" {
		t.Fatalf("whole replace = %q, %v", doc.Text, err)
	}

	if _, err := m.Update(uri, 4, []any{42}); err == nil {
		t.Error("unknown change type accepted")
	}
}

func TestManagerNotOpen(t *testing.T) {
	m := document.NewManager()
	if _, err := m.Get("file:///nope.njk"); !errors.Is(err, document.ErrNotOpen) {
		t.Errorf("Get = %v, want ErrNotOpen", err)
	}
	if _, err := m.Update("file:///nope.njk", 1, nil); !errors.Is(err, document.ErrNotOpen) {
		t.Errorf("Update = %v, want ErrNotOpen", err)
	}
	uri := "file:///x.njk"
	m.Open(uri, 1, "x")
	m.Close(uri)
	if _, err := m.Get(uri); !errors.Is(err, document.ErrNotOpen) {
		t.Errorf("Get after close = %v", err)
	}
}

func TestURIRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	path := "/home/me/site/templates/my page.njk"
	uri := document.PathToURI(path)
	if uri != "file:///home/me/site/templates/my%20page.njk" {
		t.Errorf("PathToURI = %q", uri)
	}
	if got := document.URIToPath(uri); got != path {
		t.Errorf("URIToPath = %q, want %q", got, path)
	}
	if got := document.URIToPath("untitled:Untitled-1"); got != "untitled:Untitled-1" {
		t.Errorf("non-file URI = %q", got)
	}
}
