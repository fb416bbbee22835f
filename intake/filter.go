package intake

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Rule is a compiled expression deciding whether a grab event should be
// monitored. An empty rule matches everything.
type Rule struct {
	expression string
	program    *vm.Program
}

// CompileRule compiles a monitoring rule expression.
// Expressions see the event fields (source, title, indexer, quality,
// releaseTitle, size, downloadClient) plus case-insensitive string
// helpers (icontains, hasPrefix, hasSuffix, lower, upper).
func CompileRule(expression string) (*Rule, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("empty rule expression")
	}

	program, err := expr.Compile(expression,
		expr.Env(ruleEnv(nil)),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule %q: %w", expression, err)
	}

	return &Rule{expression: expression, program: program}, nil
}

// Match evaluates the rule against an event.
func (r *Rule) Match(ev *Event) (bool, error) {
	if r == nil {
		return true, nil
	}

	out, err := expr.Run(r.program, ruleEnv(ev))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rule %q: %w", r.expression, err)
	}

	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("rule %q did not return a boolean", r.expression)
	}
	return matched, nil
}

// String returns the source expression.
func (r *Rule) String() string {
	if r == nil {
		return ""
	}
	return r.expression
}

func ruleEnv(ev *Event) map[string]any {
	env := map[string]any{
		// Case-insensitive string helpers. The case-sensitive infix forms
		// (contains, startsWith, endsWith) are built into the expression
		// language, so the helpers need distinct names.
		"icontains": func(str, substr string) bool {
			return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
		},
		"hasPrefix": func(str, prefix string) bool {
			return strings.HasPrefix(strings.ToLower(str), strings.ToLower(prefix))
		},
		"hasSuffix": func(str, suffix string) bool {
			return strings.HasSuffix(strings.ToLower(str), strings.ToLower(suffix))
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,

		// Event fields
		"source":         "",
		"title":          "",
		"indexer":        "",
		"quality":        "",
		"releaseTitle":   "",
		"downloadClient": "",
		"size":           int64(0),
	}

	if ev != nil {
		env["source"] = string(ev.Source)
		env["title"] = ev.Title
		env["indexer"] = ev.Indexer
		env["quality"] = ev.Quality
		env["releaseTitle"] = ev.ReleaseTitle
		env["downloadClient"] = ev.DownloadClient
		env["size"] = ev.Size
	}

	return env
}
