package schema

// Template is a named, switchable code snapshot the user authors against.
// Built-in templates are immutable and re-derived from the binary; custom
// ones are created lazily as their descendants.
type Template struct {
	ID          TemplateID   `json:"id"`
	Name        TemplateName `json:"name"`
	Code        string       `json:"code"`
	ProjectName string       `json:"project_name,omitempty"`
	BuiltIn     bool         `json:"built_in,omitempty"`
}

// TranscriptEntry is one chat bubble in a workspace transcript.
type TranscriptEntry struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
	// Pending marks an assistant summary whose session has not completed.
	Pending bool `json:"pending,omitempty"`
}
