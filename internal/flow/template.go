package flow

import "regexp"

// placeholderPattern matches {{name}} tokens in prompt text. This is a plain
// token substitution, not a templating language; anything that does not match
// the pattern is left untouched.
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// renderTemplate substitutes every {{name}} placeholder in text with the
// matching session variable. Missing variables render as the empty string;
// rendering never fails.
func renderTemplate(text string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := match[2 : len(match)-2]
		return vars[key]
	})
}
