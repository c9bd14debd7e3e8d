package schema

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestValidateVisitorID(t *testing.T) {
	cases := []struct {
		name    string
		visitor VisitorID
		valid   bool
	}{
		{"simple", "visitor-1", true},
		{"uuid-ish", "b3a1c2d4-9e8f-4a5b-8c7d-0e1f2a3b4c5d", true},
		{"with-dots", "device.42", true},
		{"with-underscore", "device_42", true},
		{"uppercase", "Visitor1", true},
		{"empty", "", false},
		{"space", "visitor 1", false},
		{"leading-space", " visitor", false},
		{"trailing-space", "visitor ", false},
		{"unicode", "besökare", false},
		{"symbol", "visitor@home", false},
		{"too-long", VisitorID(strings.Repeat("a", 129)), false},
	}

	for _, tc := range cases {
		err := ValidateVisitorID(tc.visitor)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
	}
}

func TestNormalizeTemplateName(t *testing.T) {
	if got := NormalizeTemplateName("  Neon Clock  "); got != "Neon Clock" {
		t.Fatalf("expected trimmed name, got %q", got)
	}
	long := TemplateName(strings.Repeat("x", 100))
	if got := NormalizeTemplateName(long); len(got) != 64 {
		t.Fatalf("expected 64-rune truncation, got len %d", len(got))
	}
	if got := NormalizeTemplateName("   "); got != "" {
		t.Fatalf("expected empty name, got %q", got)
	}
}

func TestNormalizeTemplateNameKeepsRunesIntact(t *testing.T) {
	// 32 three-byte runes put the cut inside rune number 22.
	long := TemplateName(strings.Repeat("\u4e16", 32))
	got := string(NormalizeTemplateName(long))
	if !utf8.ValidString(got) {
		t.Fatalf("truncated name is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("\u4e16", 21) {
		t.Fatalf("expected 21 whole runes, got %q (%d bytes)", got, len(got))
	}
}

func TestClampHistory(t *testing.T) {
	history := make([]ChatMessage, 0, 14)
	for i := 0; i < 14; i++ {
		history = append(history, ChatMessage{Role: "user", Content: strings.Repeat("m", i+1)})
	}
	clamped := ClampHistory(history)
	if len(clamped) != MaxMessageHistory {
		t.Fatalf("expected %d entries, got %d", MaxMessageHistory, len(clamped))
	}
	if clamped[len(clamped)-1].Content != history[len(history)-1].Content {
		t.Fatalf("expected newest entry preserved")
	}
	short := history[:3]
	if got := ClampHistory(short); len(got) != 3 {
		t.Fatalf("expected short history untouched, got %d", len(got))
	}
}

func TestGenerateRequestValidate(t *testing.T) {
	valid := GenerateRequest{Password: "sesame", VisitorID: "visitor-1", Prompt: "a clock"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	cases := []struct {
		name string
		req  GenerateRequest
		want error
	}{
		{"no-password", GenerateRequest{VisitorID: "v", Prompt: "p"}, ErrPasswordRequired},
		{"no-visitor", GenerateRequest{Password: "s", Prompt: "p"}, ErrInvalidVisitor},
		{"no-prompt", GenerateRequest{Password: "s", VisitorID: "v"}, ErrEmptyPrompt},
		{"blank-prompt", GenerateRequest{Password: "s", VisitorID: "v", Prompt: "  "}, ErrEmptyPrompt},
	}
	for _, tc := range cases {
		if err := tc.req.Validate(); err != tc.want {
			t.Fatalf("case %q expected %v, got %v", tc.name, tc.want, err)
		}
	}
}
