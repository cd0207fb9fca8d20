package parser

import (
	"regexp"
	"sort"
)

// DefinitionKind is block or macro.
type DefinitionKind string

const (
	Block DefinitionKind = "block"
	Macro DefinitionKind = "macro"
)

// Definition is a block or macro declaration. For a closed definition End
// is after its closing tag; otherwise End is after the opening tag.
type Definition struct {
	Kind   DefinitionKind
	Name   string
	Start  int
	End    int
	Closed bool
}

var defTagRe = regexp.MustCompile(`\{%-?\s*(block|macro|endblock|endmacro)\b(?:\s+([A-Za-z_][A-Za-z0-9_]*))?`)

// FindDefinitions pairs block and macro openers with their closers. Each
// kind keeps its own stack, so nested definitions of the same kind close
// innermost first. A stray closer is dropped; an opener left on the stack
// is reported unclosed.
func FindDefinitions(text string) []Definition {
	var defs []Definition
	stacks := map[DefinitionKind][]int{}

	for _, m := range defTagRe.FindAllStringSubmatchIndex(text, -1) {
		tag := text[m[2]:m[3]]
		tagEnd := statementEnd(text, m[1])

		switch tag {
		case "block", "macro":
			if m[4] < 0 {
				continue
			}
			kind := DefinitionKind(tag)
			defs = append(defs, Definition{
				Kind:  kind,
				Name:  text[m[4]:m[5]],
				Start: m[0],
				End:   tagEnd,
			})
			stacks[kind] = append(stacks[kind], len(defs)-1)

		case "endblock", "endmacro":
			kind := DefinitionKind(tag[len("end"):])
			stack := stacks[kind]
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stacks[kind] = stack[:len(stack)-1]
			defs[top].End = tagEnd
			defs[top].Closed = true
		}
	}

	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Start < defs[j].Start })
	return defs
}
