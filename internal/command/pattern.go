package command

import (
	"fmt"
	"regexp"
)

// standardPatterns are the named sub-patterns usable as {{name}} in templates.
// Hostmasks are left permissive since networks allow extended masks ($a:account and such).
var standardPatterns = map[string]string{
	"nickname": "[A-Za-z0-9\\[\\]\\\\`_^{}|-]+",
	"hostmask": `\S+`,
	"channel":  `#+[A-Za-z0-9]+`,
}

var placeholder = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// PatternError reports a template that could not be compiled
type PatternError struct {
	Template string
	Reason   string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern %q: %s", e.Template, e.Reason)
}

// Pattern is a compiled argument pattern
type Pattern struct {
	template string
	re       *regexp.Regexp
}

// Compile expands named sub-patterns in template and compiles it
func Compile(template string) (*Pattern, error) {
	var missing string
	expanded := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		sub, ok := standardPatterns[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return "(?:" + sub + ")"
	})
	if missing != "" {
		return nil, &PatternError{Template: template, Reason: fmt.Sprintf("unknown sub-pattern %q", missing)}
	}

	re, err := regexp.Compile(expanded)
	if err != nil {
		return nil, &PatternError{Template: template, Reason: err.Error()}
	}
	return &Pattern{template: template, re: re}, nil
}

// Match reports whether args match and returns the captured groups.
// Groups that did not participate in the match are empty strings.
func (p *Pattern) Match(args string) ([]string, bool) {
	m := p.re.FindStringSubmatch(args)
	if m == nil {
		return nil, false
	}
	groups := make([]string, len(m)-1)
	copy(groups, m[1:])
	return groups, true
}

// Groups returns the number of capturing groups
func (p *Pattern) Groups() int {
	return p.re.NumSubexp()
}

func (p *Pattern) String() string {
	return p.template
}
