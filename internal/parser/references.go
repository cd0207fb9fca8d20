// Package parser extracts template references and definitions from text.
// Every function is pure and tolerates malformed input: a fragment that does
// not match simply produces no entry. Offsets are byte offsets into text.
package parser

import (
	"regexp"
	"sort"
	"strings"
)

// Kind is the kind of a reference.
type Kind string

const (
	Include  Kind = "include"
	Extends  Kind = "extends"
	Import   Kind = "import"
	Next     Kind = "next"
	Prev     Kind = "prev"
	Parent   Kind = "parent"
	Children Kind = "children"
	Related  Kind = "related"
)

// Relationship reports whether k comes from an @rel annotation.
func (k Kind) Relationship() bool {
	switch k {
	case Next, Prev, Parent, Children, Related:
		return true
	}
	return false
}

// Reference is one reference to another template. Start and End cover the
// whole statement, PathStart and PathEnd only the target as written.
type Reference struct {
	Kind      Kind
	Target    string
	Start     int
	End       int
	PathStart int
	PathEnd   int
}

var (
	// RE2 has no backreferences, so each quote style is its own group.
	includeRe = regexp.MustCompile(`\{%-?\s*(include|extends|import|from)\s+(?:"([^"\n]*)"|'([^'\n]*)')`)

	relTypes   = `(next|prev|parent|children|related)`
	relJinjaRe = regexp.MustCompile(`\{#-?\s*@rel\s+` + relTypes + `\s*:([^\n]*?)-?#\}`)
	relHTMLRe  = regexp.MustCompile(`<!--\s*@rel\s+` + relTypes + `\s*:([^\n]*?)-->`)
)

// FindIncludeLike finds include, extends, import and from statements. A
// from statement is reported as an import. End is after the closing "%}"
// of the statement when there is one, else after the closing quote.
func FindIncludeLike(text string) []Reference {
	var refs []Reference
	for _, m := range includeRe.FindAllStringSubmatchIndex(text, -1) {
		kind := Kind(text[m[2]:m[3]])
		if kind == "from" {
			kind = Import
		}

		pathStart, pathEnd := m[4], m[5]
		if pathStart < 0 {
			pathStart, pathEnd = m[6], m[7]
		}

		refs = append(refs, Reference{
			Kind:      kind,
			Target:    text[pathStart:pathEnd],
			Start:     m[0],
			End:       statementEnd(text, m[1]),
			PathStart: pathStart,
			PathEnd:   pathEnd,
		})
	}
	return refs
}

// statementEnd returns the offset after the "%}" closing the tag that
// continues at from, or from itself when the tag is not closed before the
// next one opens.
func statementEnd(text string, from int) int {
	rest := text[from:]
	closeAt := strings.Index(rest, "%}")
	if closeAt < 0 {
		return from
	}
	if openAt := strings.Index(rest, "{%"); openAt >= 0 && openAt < closeAt {
		return from
	}
	return from + closeAt + 2
}

// FindRelationshipRefs finds "@rel <type>: a, b" annotations inside
// template comments and HTML comments. Each non-empty target becomes its
// own Reference; surrounding quotes are not part of the path range.
func FindRelationshipRefs(text string) []Reference {
	var refs []Reference
	for _, re := range []*regexp.Regexp{relJinjaRe, relHTMLRe} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			kind := Kind(text[m[2]:m[3]])
			for _, tok := range splitTargets(text, m[4], m[5]) {
				refs = append(refs, Reference{
					Kind:      kind,
					Target:    text[tok[0]:tok[1]],
					Start:     m[0],
					End:       m[1],
					PathStart: tok[0],
					PathEnd:   tok[1],
				})
			}
		}
	}
	sortByPath(refs)
	return refs
}

// splitTargets splits text[start:end] on commas and returns the offsets of
// every non-empty token, trimmed and unquoted.
func splitTargets(text string, start, end int) [][2]int {
	var out [][2]int
	tokStart := start
	for i := start; i <= end; i++ {
		if i < end && text[i] != ',' {
			continue
		}
		s, e := trimToken(text, tokStart, i)
		if s < e {
			out = append(out, [2]int{s, e})
		}
		tokStart = i + 1
	}
	return out
}

func trimToken(text string, s, e int) (int, int) {
	for s < e && isSpace(text[s]) {
		s++
	}
	for e > s && isSpace(text[e-1]) {
		e--
	}
	if e-s >= 2 && (text[s] == '"' || text[s] == '\'') && text[e-1] == text[s] {
		s++
		e--
	}
	return s, e
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// FindReferences returns structural and relationship references together,
// ordered by the start of their path.
func FindReferences(text string) []Reference {
	refs := append(FindIncludeLike(text), FindRelationshipRefs(text)...)
	sortByPath(refs)
	return refs
}

func sortByPath(refs []Reference) {
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].PathStart < refs[j].PathStart })
}

// ReferenceAt returns the reference whose path range contains offset. The
// position just after the last character of a path still counts.
func ReferenceAt(refs []Reference, offset int) (Reference, bool) {
	for _, r := range refs {
		if offset >= r.PathStart && offset <= r.PathEnd {
			return r, true
		}
	}
	return Reference{}, false
}
