package field

import (
	"regexp"

	"github.com/sablhq/warehouse/internal/util"
)

// tokenRE matches {field_name} references inside a formula template.
var tokenRE = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Tokens returns the field names a formula template directly references.
func (f *Formula) Tokens() []string {
	matches := tokenRE.FindAllStringSubmatch(f.Template, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// ExpandLeaves resolves a field's formula (if any) to the set of
// non-formula leaf fields it ultimately depends on, expanding nested
// formula references up to MaxFormulaDepth and rejecting cycles by set
// membership rather than risking stack overflow, per the redesign note in
// §9. If f is not itself a formula field, it is its own sole leaf.
func ExpandLeaves(reg *Registry, f *Field) ([]*Field, error) {
	if !f.IsFormula() {
		return []*Field{f}, nil
	}
	visited := map[string]bool{f.Name: true}
	return expand(reg, f, 1, visited)
}

func expand(reg *Registry, f *Field, depth int, visited map[string]bool) ([]*Field, error) {
	if depth > MaxFormulaDepth {
		return nil, util.MaxFormulaDepth(f.Name, MaxFormulaDepth)
	}
	var leaves []*Field
	seen := map[string]bool{}
	for _, tok := range f.Formula.Tokens() {
		if visited[tok] {
			return nil, util.ReportException("formula cycle detected at field \""+tok+"\"", nil)
		}
		child, err := reg.GetField(tok)
		if err != nil {
			return nil, err
		}
		if !child.IsFormula() {
			if !seen[child.Name] {
				leaves = append(leaves, child)
				seen[child.Name] = true
			}
			continue
		}
		childVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			childVisited[k] = true
		}
		childVisited[tok] = true
		childLeaves, err := expand(reg, child, depth+1, childVisited)
		if err != nil {
			return nil, err
		}
		for _, cl := range childLeaves {
			if !seen[cl.Name] {
				leaves = append(leaves, cl)
				seen[cl.Name] = true
			}
		}
	}
	return leaves, nil
}

// Render substitutes each {token} in the formula template with the
// replacement the caller supplies, used both to build the data-source SQL
// expression (pushdown) and the combined-layer SELECT expression.
func (f *Formula) Render(replacements map[string]string) string {
	return tokenRE.ReplaceAllStringFunc(f.Template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if r, ok := replacements[name]; ok {
			return r
		}
		return tok
	})
}
