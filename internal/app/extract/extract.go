// Package extract evaluates JSONPath column queries against verified response bodies.
//
// Expressions are validated with a JSONPath parser and evaluated with gjson so matches keep their
// raw JSON text: strings stay quoted and large integers keep every digit.
package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/coachpo/assetproof/errs"
)

const wildcardSegment = "#"

// Path is a compiled path expression.
type Path struct {
	expr  string
	query string
	depth int
}

// String returns the source expression.
func (p Path) String() string { return p.expr }

// Compile validates a JSONPath expression and prepares it for evaluation.
// Supported selectors: `$`, `.name`, `[*]` and `[n]`; `$.[` is accepted as `$[`.
func Compile(expr string) (Path, error) {
	normalized := normalize(expr)
	if !strings.HasPrefix(normalized, "$") {
		return Path{}, invalidExpression(expr, fmt.Errorf("expression must start with $"))
	}
	if _, err := jsonpath.New(normalized); err != nil {
		return Path{}, invalidExpression(expr, err)
	}
	segments, err := split(normalized[1:])
	if err != nil {
		return Path{}, invalidExpression(expr, err)
	}

	depth := 0
	for _, seg := range segments {
		if seg == wildcardSegment {
			depth++
		}
	}
	// gjson reads a trailing `#` as the array length, so the last wildcard is expanded while
	// flattening instead.
	if n := len(segments); n > 0 && segments[n-1] == wildcardSegment {
		segments = segments[:n-1]
	}
	query := strings.Join(segments, ".")
	if query == "" {
		query = "@this"
	}
	return Path{expr: expr, query: query, depth: depth}, nil
}

// CompileAll compiles expressions in order.
func CompileAll(exprs ...string) ([]Path, error) {
	out := make([]Path, 0, len(exprs))
	for _, expr := range exprs {
		p, err := Compile(expr)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Extract returns, path by path, every value matched in msg as raw JSON text.
func Extract(msg []byte, paths []Path) ([]string, error) {
	if !gjson.ValidBytes(msg) {
		return nil, errs.New(errs.CodeGetJSONValueFail, errs.WithMessage("message is not valid JSON"))
	}
	var out []string
	for _, p := range paths {
		if p.query == "" {
			return nil, errs.New(errs.CodeGetJSONValueFail, errs.WithMessage("uncompiled path"))
		}
		out = flatten(out, gjson.GetBytes(msg, p.query), p.depth)
	}
	return out, nil
}

// Unquote strips surrounding double quotes from a raw value without unescaping it.
func Unquote(raw string) string {
	return strings.Trim(raw, `"`)
}

func flatten(dst []string, r gjson.Result, depth int) []string {
	if !r.Exists() {
		return dst
	}
	if depth == 0 {
		return append(dst, r.Raw)
	}
	if !r.IsArray() {
		return dst
	}
	r.ForEach(func(_, item gjson.Result) bool {
		dst = flatten(dst, item, depth-1)
		return true
	})
	return dst
}

func normalize(expr string) string {
	trimmed := strings.TrimSpace(expr)
	if strings.HasPrefix(trimmed, "$.[") {
		return "$" + trimmed[2:]
	}
	return trimmed
}

// split turns the selector chain following `$` into gjson path segments.
func split(chain string) ([]string, error) {
	var segments []string
	for i := 0; i < len(chain); {
		switch chain[i] {
		case '.':
			j := i + 1
			for j < len(chain) && chain[j] != '.' && chain[j] != '[' {
				j++
			}
			name := chain[i+1 : j]
			if name == "" {
				return nil, fmt.Errorf("empty member name at offset %d", i)
			}
			segments = append(segments, escape(name))
			i = j
		case '[':
			end := strings.IndexByte(chain[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated bracket at offset %d", i)
			}
			inner := strings.TrimSpace(chain[i+1 : i+end])
			switch {
			case inner == "*":
				segments = append(segments, wildcardSegment)
			case isIndex(inner):
				segments = append(segments, inner)
			default:
				return nil, fmt.Errorf("unsupported selector [%s]", inner)
			}
			i += end + 1
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", chain[i], i)
		}
	}
	return segments, nil
}

func isIndex(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0
}

func escape(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func invalidExpression(expr string, err error) error {
	return errs.New(errs.CodeGetJSONValueFail,
		errs.WithMessage(fmt.Sprintf("invalid path %q: %v", expr, err)),
		errs.WithCause(err))
}
