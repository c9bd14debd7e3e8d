package core

import (
	"embed"
	"sort"
	"strings"

	"pkt.systems/snipforge/schema"
)

//go:embed templates/*.html
var builtinFS embed.FS

// BuiltinTemplates returns the starter variants compiled into the binary,
// sorted by name. Built-ins are immutable; generating on top of one
// promotes the result to a new custom variant.
func BuiltinTemplates() []schema.Template {
	entries, err := builtinFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	templates := make([]schema.Template, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := builtinFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), ".html")
		templates = append(templates, schema.Template{
			ID:      schema.TemplateID("builtin-" + base),
			Name:    schema.TemplateName(titleCase(base)),
			Code:    string(data),
			BuiltIn: true,
		})
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
