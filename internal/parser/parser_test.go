package parser_test

import (
	"strings"
	"testing"

	"kr.dev/diff"

	"trellis/internal/parser"
)

func TestFindIncludeLike(t *testing.T) {
	text := `{% extends "layout.njk" %}
{%- include 'partials/nav' -%}
{% from "macros/forms.njk" import field %}
{% import "x" as y`
	got := parser.FindIncludeLike(text)
	want := []parser.Reference{
		{Kind: parser.Extends, Target: "layout.njk", Start: 0, End: 26, PathStart: 12, PathEnd: 22},
		{Kind: parser.Include, Target: "partials/nav", Start: 27, End: 57, PathStart: 40, PathEnd: 52},
		{Kind: parser.Import, Target: "macros/forms.njk", Start: 58, End: 100, PathStart: 67, PathEnd: 83},
		{Kind: parser.Import, Target: "x", Start: 101, End: 114, PathStart: 112, PathEnd: 113},
	}
	diff.Test(t, t.Errorf, got, want)

	for _, r := range got {
		if text[r.PathStart:r.PathEnd] != r.Target {
			t.Errorf("path range %d:%d = %q, want %q", r.PathStart, r.PathEnd, text[r.PathStart:r.PathEnd], r.Target)
		}
		if !(r.Start <= r.PathStart && r.PathStart <= r.PathEnd && r.PathEnd <= r.End) {
			t.Errorf("ranges out of order: %+v", r)
		}
	}
}

func TestFindIncludeLikeMalformed(t *testing.T) {
	for _, text := range []string{
		"",
		`{% include %}`,
		`{% include "unterminated %}`,
		`{% include "a'`,
		`{{ include "a" }}`,
		`{% includes "a" %}`,
		"{% include \"multi\nline\" %}",
	} {
		if got := parser.FindIncludeLike(text); len(got) != 0 {
			t.Errorf("FindIncludeLike(%q) = %+v, want none", text, got)
		}
	}
}

func TestFindRelationshipRefs(t *testing.T) {
	text := `{# @rel next: intro, "chapter-2" , #}
<!-- @rel related:  'notes/a.njk' -->`
	got := parser.FindRelationshipRefs(text)
	want := []parser.Reference{
		{Kind: parser.Next, Target: "intro", Start: 0, End: 37, PathStart: 14, PathEnd: 19},
		{Kind: parser.Next, Target: "chapter-2", Start: 0, End: 37, PathStart: 22, PathEnd: 31},
		{Kind: parser.Related, Target: "notes/a.njk", Start: 38, End: 75, PathStart: 59, PathEnd: 70},
	}
	diff.Test(t, t.Errorf, got, want)

	for _, r := range got {
		if text[r.PathStart:r.PathEnd] != r.Target {
			t.Errorf("path range %d:%d = %q, want %q", r.PathStart, r.PathEnd, text[r.PathStart:r.PathEnd], r.Target)
		}
		if !r.Kind.Relationship() {
			t.Errorf("%s should be a relationship kind", r.Kind)
		}
	}
}

func TestFindRelationshipRefsMalformed(t *testing.T) {
	for _, text := range []string{
		`{# @rel next intro #}`,
		`{# @rel sibling: a #}`,
		`{# @rel next: a`,
		`<!-- @rel prev: , , -->`,
		"{# @rel next: a\n#}",
	} {
		if got := parser.FindRelationshipRefs(text); len(got) != 0 {
			t.Errorf("FindRelationshipRefs(%q) = %+v, want none", text, got)
		}
	}
}

func TestFindReferencesOrdered(t *testing.T) {
	text := `<!-- @rel parent: index -->{% include "a" %}{# @rel children: b, c #}`
	var got []string
	for _, r := range parser.FindReferences(text) {
		got = append(got, string(r.Kind)+":"+r.Target)
	}
	diff.Test(t, t.Errorf, got, []string{"parent:index", "include:a", "children:b", "children:c"})
}

func TestReferenceAt(t *testing.T) {
	text := `{% include "button" %}`
	refs := parser.FindReferences(text)
	start := strings.Index(text, "button")
	end := start + len("button")

	tests := []struct {
		offset int
		ok     bool
	}{
		{start - 1, false},
		{start, true},
		{start + 3, true},
		{end, true},
		{end + 1, false},
		{0, false},
	}
	for _, tt := range tests {
		r, ok := parser.ReferenceAt(refs, tt.offset)
		if ok != tt.ok {
			t.Errorf("ReferenceAt(%d) ok = %v, want %v", tt.offset, ok, tt.ok)
		}
		if ok && r.Target != "button" {
			t.Errorf("ReferenceAt(%d) = %q", tt.offset, r.Target)
		}
	}
}

func TestFindDefinitionsNested(t *testing.T) {
	text := `{% block outer %}
  {% block inner %}x{% endblock %}
  {% macro field(name) %}{% endmacro %}
{% endblock outer %}
{% block open %}`
	got := parser.FindDefinitions(text)

	type def struct {
		Kind   parser.DefinitionKind
		Name   string
		Body   string
		Closed bool
	}
	var simple []def
	for _, d := range got {
		simple = append(simple, def{d.Kind, d.Name, text[d.Start:d.End], d.Closed})
	}
	want := []def{
		{parser.Block, "outer", text[:strings.Index(text, "\n{% block open")], true},
		{parser.Block, "inner", `{% block inner %}x{% endblock %}`, true},
		{parser.Macro, "field", `{% macro field(name) %}{% endmacro %}`, true},
		{parser.Block, "open", `{% block open %}`, false},
	}
	diff.Test(t, t.Errorf, simple, want)
}

func TestFindDefinitionsStrayCloser(t *testing.T) {
	text := `{% endblock %}{% endmacro %}{% block %}{% block a %}{% endmacro %}`
	got := parser.FindDefinitions(text)
	if len(got) != 1 || got[0].Name != "a" || got[0].Closed {
		t.Fatalf("unexpected definitions %+v", got)
	}
}

func TestCompletionContextAt(t *testing.T) {
	tests := []struct {
		name   string
		text   string // | marks the cursor
		ok     bool
		kind   parser.Kind
		prefix string
		rest   string
	}{
		{"include", `{% include "comp|onents/button" %}`, true, parser.Include, "comp", "components/button"},
		{"single quote", `{%- extends '|' %}`, true, parser.Extends, "", ""},
		{"from", `{% from "mac|`, true, parser.Import, "mac", "mac"},
		{"outside quotes", `{% include "a" | %}`, false, "", "", ""},
		{"no keyword", `{% set x = "a|" %}`, false, "", "", ""},
		{"rel first", `{# @rel next: in| #}`, true, parser.Next, "in", "in"},
		{"rel second", `<!-- @rel related: a, "b/c|" -->`, true, parser.Related, "b/c", "b/c"},
		{"rel closed", `{# @rel next: a #} |`, false, "", "", ""},
		{"other line", "{% include \"a\n|", false, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset := strings.Index(tt.text, "|")
			text := tt.text[:offset] + tt.text[offset+1:]
			got, ok := parser.CompletionContextAt(text, offset)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Kind != tt.kind || got.Prefix != tt.prefix {
				t.Errorf("got kind %s prefix %q, want %s %q", got.Kind, got.Prefix, tt.kind, tt.prefix)
			}
			if text[got.Start:got.End] != tt.rest {
				t.Errorf("target range = %q, want %q", text[got.Start:got.End], tt.rest)
			}
		})
	}
}

func TestCompletionContextOutOfRange(t *testing.T) {
	if _, ok := parser.CompletionContextAt("abc", 10); ok {
		t.Error("offset past the end must not match")
	}
}
