package policy

import (
	"fmt"
	"regexp"
)

// Denylist is the fixed, preset-independent set of patterns that force a
// prompt into dangerous_operation. The defaults are always present; config
// can extend the list but never shrink it.
type Denylist struct {
	patterns []denyPattern
}

type denyPattern struct {
	label string
	expr  *regexp.Regexp
}

// Destructive or irreversible operations, plus targets that always need a
// human (production systems, protected branches).
var defaultDenyPatterns = []struct {
	label string
	expr  string
}{
	{"recursive filesystem removal", `rm\s+-[a-z]*[rf][a-z]*[rf]?`},
	{"file deletion", `\bdelete\b`},
	{"file removal", `\bremove\b`},
	{"table drop", `drop\s+table`},
	{"bulk row deletion", `delete\s+from`},
	{"table truncation", `\btruncate\b`},
	{"disk or volume format", `\bformat\b`},
	{"destroy operation", `\bdestroy\b`},
	{"purge operation", `\bpurge\b`},
	{"forced history rewrite", `push\s+(?:[^\n]*\s)?(?:--force\b|-f\b)|filter-branch|reset\s+--hard`},
	{"production target", `\bproduction\b|\bprod\b|\blive\b`},
	{"protected branch", `\bmaster\b|main\s+branch`},
}

// DefaultDenylist builds the built-in denylist.
func DefaultDenylist() *Denylist {
	d := &Denylist{}
	for _, p := range defaultDenyPatterns {
		d.patterns = append(d.patterns, denyPattern{
			label: p.label,
			expr:  regexp.MustCompile(`(?i)` + p.expr),
		})
	}
	return d
}

// Extend compiles additional patterns onto the denylist. The built-in
// patterns keep their position at the front of the list.
func (d *Denylist) Extend(exprs []string) error {
	for _, raw := range exprs {
		expr, err := regexp.Compile(`(?i)` + raw)
		if err != nil {
			return fmt.Errorf("denylist pattern %q: %w", raw, err)
		}
		d.patterns = append(d.patterns, denyPattern{label: "configured pattern " + raw, expr: expr})
	}
	return nil
}

// Match returns the label and matched substring of the first denylist
// pattern found in text.
func (d *Denylist) Match(text string) (label, matched string, ok bool) {
	for _, p := range d.patterns {
		if m := p.expr.FindString(text); m != "" {
			return p.label, m, true
		}
	}
	return "", "", false
}

// Len returns the number of compiled patterns.
func (d *Denylist) Len() int { return len(d.patterns) }
