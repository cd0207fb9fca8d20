package parser

import (
	"regexp"
	"strings"
)

// CompletionContext describes a reference target being typed. Prefix is the
// text between Start and the cursor; End is where the target currently ends,
// which may lie after the cursor.
type CompletionContext struct {
	Kind   Kind
	Prefix string
	Start  int
	End    int
}

var (
	includePrefixRe = regexp.MustCompile(`\{%-?\s*(include|extends|import|from)\s+["']([^"'\n]*)$`)
	relPrefixRe     = regexp.MustCompile(`(?:\{#-?|<!--)\s*@rel\s+` + relTypes + `\s*:([^\n]*)$`)
)

// CompletionContextAt reports whether offset is inside the quoted target of
// a structural reference or inside the target list of an @rel annotation.
func CompletionContextAt(text string, offset int) (CompletionContext, bool) {
	if offset < 0 || offset > len(text) {
		return CompletionContext{}, false
	}
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	line := text[lineStart:offset]

	if m := includePrefixRe.FindStringSubmatchIndex(line); m != nil {
		kind := Kind(line[m[2]:m[3]])
		if kind == "from" {
			kind = Import
		}
		start := lineStart + m[4]
		return CompletionContext{
			Kind:   kind,
			Prefix: text[start:offset],
			Start:  start,
			End:    scanTo(text, offset, "\"'\n"),
		}, true
	}

	if m := relPrefixRe.FindStringSubmatchIndex(line); m != nil {
		list := line[m[4]:m[5]]
		if strings.Contains(list, "#}") || strings.Contains(list, "-->") {
			return CompletionContext{}, false
		}
		tokStart := lineStart + m[4] + strings.LastIndexByte(list, ',') + 1
		for tokStart < offset && isSpace(text[tokStart]) {
			tokStart++
		}
		if tokStart < offset && (text[tokStart] == '"' || text[tokStart] == '\'') {
			tokStart++
		}
		end := scanTo(text, offset, ",\"'\n")
		if i := strings.Index(text[offset:end], "#}"); i >= 0 {
			end = offset + i
		}
		if i := strings.Index(text[offset:end], "-->"); i >= 0 {
			end = offset + i
		}
		for end > offset && isSpace(text[end-1]) {
			end--
		}
		return CompletionContext{
			Kind:   Kind(line[m[2]:m[3]]),
			Prefix: text[tokStart:offset],
			Start:  tokStart,
			End:    end,
		}, true
	}

	return CompletionContext{}, false
}

// scanTo returns the offset of the first byte at or after from that is one
// of stops, or len(text).
func scanTo(text string, from int, stops string) int {
	if i := strings.IndexAny(text[from:], stops); i >= 0 {
		return from + i
	}
	return len(text)
}
