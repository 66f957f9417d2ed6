// Package engine implements component H: condition-tree evaluation against
// per-file almanac facts, producing RuleFailure descriptors.
package engine

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// indexValue is the bracketed part of a path segment: either a literal
// array index ([3]) or a wildcard ([*]) that returns the whole slice.
type indexValue struct {
	Star   string `parser:"( @Star"`
	Number *int   `parser:"| @Number )"`
}

// pathSegment is one dotted step in a leaf condition's `path`, optionally
// followed by a bracketed index.
type pathSegment struct {
	Name  string      `parser:"@Ident"`
	Index *indexValue `parser:"( \"[\" @@ \"]\" )?"`
}

// pathExpr is the small dotted/bracket JSONPath-lite grammar named in §4.H:
// `a.b[0].c` or `a.b[*].c`.
type pathExpr struct {
	Segments []*pathSegment `parser:"@@ ( \".\" @@ )*"`
}

var pathLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Dot", Pattern: `\.`},
	{Name: "LBracket", Pattern: `\[`},
	{Name: "RBracket", Pattern: `\]`},
	{Name: "Star", Pattern: `\*`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var pathParser = participle.MustBuild[pathExpr](
	participle.Lexer(pathLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// ParsePath parses a leaf condition's `path` string into navigable segments.
// An empty path parses to a no-op expression (Navigate returns its input
// unchanged).
func ParsePath(raw string) (*pathExpr, error) {
	if raw == "" {
		return &pathExpr{}, nil
	}
	expr, err := pathParser.ParseString("", raw)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", raw, err)
	}
	return expr, nil
}

// Navigate resolves expr against value, descending through maps and slices.
// A missing key, non-indexable value, or out-of-range index returns
// (nil, false) rather than an error — §4.H treats an unresolved path as a
// failed leaf, not an engine exception.
func Navigate(value any, expr *pathExpr) (any, bool) {
	cur := value
	for _, seg := range expr.Segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[seg.Name]
		if !ok {
			return nil, false
		}
		cur = next

		if seg.Index == nil {
			continue
		}
		list, ok := cur.([]any)
		if !ok {
			return nil, false
		}
		if seg.Index.Star != "" {
			return list, true
		}
		if seg.Index.Number == nil || *seg.Index.Number < 0 || *seg.Index.Number >= len(list) {
			return nil, false
		}
		cur = list[*seg.Index.Number]
	}
	return cur, true
}
