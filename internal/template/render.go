// Package template renders {{variable}} placeholders in prompt templates.
package template

import (
	"regexp"
)

var variablePattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// RenderPrompt substitutes {{name}} placeholders with values from vars.
// Placeholders without a value are left untouched.
func RenderPrompt(prompt string, vars map[string]string) string {
	if len(vars) == 0 {
		return prompt
	}
	return variablePattern.ReplaceAllStringFunc(prompt, func(match string) string {
		name := match[2 : len(match)-2]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Variables lists the placeholder names in prompt in order of first use.
func Variables(prompt string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(prompt, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
