package parser

import (
	"regexp"
)

// lineRule is a structurally required line: a name used in error reports
// and the pattern its body must contain.
type lineRule struct {
	name string
	re   *regexp.Regexp
}

func newRule(name, pattern string) lineRule {
	return lineRule{name: name, re: regexp.MustCompile(pattern)}
}

// match applies the rule to the cursor's current line. A mismatch, or
// being past the end of input, is a FormatError.
func (r lineRule) match(c *lineCursor) ([]string, error) {
	if c.atEnd() {
		return nil, c.fail(r.name)
	}
	m := r.re.FindStringSubmatch(c.line)
	if m == nil {
		return nil, c.fail(r.name)
	}
	return m, nil
}

// matches reports whether the rule accepts s without failing the parse.
func (r lineRule) matches(s string) []string {
	return r.re.FindStringSubmatch(s)
}

// fieldRule pairs a required line with the extractor that copies its
// submatches into a record under construction.
type fieldRule[T any] struct {
	lineRule
	apply func(dst *T, m []string)
}

// applyRules consumes one line per rule, in order. The cursor must be on
// the line for the first rule; on success it is left on the line after
// the last one.
func applyRules[T any](c *lineCursor, dst *T, rules []fieldRule[T]) error {
	for _, r := range rules {
		m, err := r.match(c)
		if err != nil {
			return err
		}
		r.apply(dst, m)
		c.next()
	}
	return nil
}

// field builds a fieldRule; T is inferred from apply.
func field[T any](name, pattern string, apply func(dst *T, m []string)) fieldRule[T] {
	return fieldRule[T]{lineRule: newRule(name, pattern), apply: apply}
}
