// Package htmlfmt reindents single-file HTML documents. It is deliberately
// conservative: only leading whitespace changes, content and tag text are
// preserved byte for byte. Generated documents arrive with inconsistent
// indentation; a failed or surprising reformat is worse than none.
package htmlfmt

import "strings"

const indentUnit = "  "

// voidElements never take a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// rawTextElements hold verbatim content that must not be touched. Script
// bodies are whitespace-sensitive enough that reindenting them can change
// behavior (template literals).
var rawTextElements = map[string]bool{
	"pre": true, "script": true, "style": true, "textarea": true,
}

// Format reindents code. It never returns an error; the signature matches
// the formatter capability so a stricter formatter can drop in later.
func Format(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return code, nil
	}
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	depth := 0
	raw := "" // non-empty while inside a raw-text element

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if raw != "" {
			if closesElement(trimmed, raw) {
				raw = ""
				depth--
				if depth < 0 {
					depth = 0
				}
				out = append(out, strings.Repeat(indentUnit, depth)+trimmed)
				continue
			}
			// Verbatim, original indentation included.
			out = append(out, line)
			continue
		}

		if trimmed == "" {
			out = append(out, "")
			continue
		}

		opens, closes, rawOpen := scanLine(trimmed)
		if closes > 0 && opens == 0 {
			depth -= closes
			if depth < 0 {
				depth = 0
			}
			out = append(out, strings.Repeat(indentUnit, depth)+trimmed)
			continue
		}
		out = append(out, strings.Repeat(indentUnit, depth)+trimmed)
		depth += opens - closes
		if depth < 0 {
			depth = 0
		}
		raw = rawOpen
	}
	return strings.Join(out, "\n"), nil
}

// closesElement reports whether the line starts with the closing tag for
// name.
func closesElement(trimmed, name string) bool {
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "</"+name) {
		return false
	}
	rest := lower[len("</"+name):]
	return strings.HasPrefix(rest, ">") || strings.HasPrefix(rest, " ")
}

// scanLine counts the nesting delta of one line and reports a raw-text
// element opened and left unclosed on it.
func scanLine(line string) (opens, closes int, rawOpen string) {
	i := 0
	for i < len(line) {
		start := strings.IndexByte(line[i:], '<')
		if start == -1 {
			break
		}
		i += start
		end := strings.IndexByte(line[i:], '>')
		if end == -1 {
			break
		}
		tag := line[i : i+end+1]
		i += end + 1

		name, closing, selfClosing, markup := parseTag(tag)
		if markup || name == "" {
			continue
		}
		if closing {
			if rawOpen == name {
				rawOpen = ""
				opens--
				continue
			}
			closes++
			continue
		}
		if voidElements[name] || selfClosing {
			continue
		}
		opens++
		if rawTextElements[name] {
			rawOpen = name
		}
	}
	return opens, closes, rawOpen
}

// parseTag extracts the element name from one <...> token. markup covers
// comments, doctype, and processing instructions, which never nest.
func parseTag(tag string) (name string, closing, selfClosing, markup bool) {
	inner := strings.TrimSuffix(strings.TrimPrefix(tag, "<"), ">")
	if inner == "" {
		return "", false, false, true
	}
	switch inner[0] {
	case '!', '?':
		return "", false, false, true
	case '/':
		closing = true
		inner = inner[1:]
	}
	if strings.HasSuffix(inner, "/") {
		selfClosing = true
		inner = strings.TrimSuffix(inner, "/")
	}
	for idx := 0; idx < len(inner); idx++ {
		c := inner[idx]
		if c == ' ' || c == '\t' {
			inner = inner[:idx]
			break
		}
	}
	return strings.ToLower(strings.TrimSpace(inner)), closing, selfClosing, markup
}
