package template

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Render substitutes {{name}} placeholders with values from attributes.
// A placeholder with no matching attribute is left in the output as a
// literal marker: rendering is total and partial data never blocks a send.
func Render(input string, attributes map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]

		value, ok := attributes[name]
		if !ok {
			return match
		}

		return value
	})
}

// RenderTemplate renders subject and body of a template in one pass.
func RenderTemplate(template *Template, attributes map[string]string) (subject, body string) {
	return Render(template.Subject, attributes), Render(template.Body, attributes)
}

// Placeholders lists the distinct placeholder names referenced by the input,
// in order of first appearance. Used by operational tooling to report which
// attributes a template expects.
func Placeholders(input string) []string {
	var names []string

	seen := make(map[string]bool)

	for _, match := range placeholderPattern.FindAllStringSubmatch(input, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true

			names = append(names, name)
		}
	}

	return names
}

// HasUnresolved reports whether the rendered output still contains
// placeholder markers.
func HasUnresolved(rendered string) bool {
	return strings.Contains(rendered, "{{") && placeholderPattern.MatchString(rendered)
}
