package schema

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidateVisitorID ensures a visitor id matches [A-Za-z0-9._-] and is not
// unreasonably long. Visitor ids are minted client-side, so they are treated
// as hostile input.
func ValidateVisitorID(visitorID VisitorID) error {
	raw := string(visitorID)
	if raw == "" || len(raw) > 128 {
		return ErrInvalidVisitor
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidVisitor
	}
	for _, r := range raw {
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		if r > unicode.MaxASCII {
			return ErrInvalidVisitor
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return ErrInvalidVisitor
	}
	return nil
}

// NormalizeTemplateName trims and truncates a variant name. Empty input
// stays empty; callers fall back to sequential naming.
func NormalizeTemplateName(name TemplateName) TemplateName {
	trimmed := strings.TrimSpace(string(name))
	const maxLen = 64
	if len(trimmed) > maxLen {
		// Cut on a rune boundary so a multi-byte title stays valid UTF-8.
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
			cut--
		}
		trimmed = strings.TrimSpace(trimmed[:cut])
	}
	return TemplateName(trimmed)
}
