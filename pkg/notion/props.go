package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// PlainText returns the trimmed text of a title, rich text, select, status
// or URL property, or "" when the property is absent or of another type.
func PlainText(page notionapi.Page, name string) string {
	prop, ok := page.Properties[name]
	if !ok {
		return ""
	}

	var sb strings.Builder
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		for _, rt := range p.Title {
			sb.WriteString(rt.PlainText)
		}
	case *notionapi.RichTextProperty:
		for _, rt := range p.RichText {
			sb.WriteString(rt.PlainText)
		}
	case *notionapi.SelectProperty:
		sb.WriteString(p.Select.Name)
	case *notionapi.StatusProperty:
		sb.WriteString(p.Status.Name)
	case *notionapi.URLProperty:
		sb.WriteString(p.URL)
	}
	return strings.TrimSpace(sb.String())
}

// MultiSelect returns the option names of a multi-select property.
func MultiSelect(page notionapi.Page, name string) []string {
	prop, ok := page.Properties[name]
	if !ok {
		return nil
	}
	ms, ok := prop.(*notionapi.MultiSelectProperty)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ms.MultiSelect))
	for _, o := range ms.MultiSelect {
		out = append(out, o.Name)
	}
	return out
}
