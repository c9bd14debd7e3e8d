package schema

import "strings"

// MaxMessageHistory caps the chat history sent with a generation request.
// Older entries degrade generation quality, so the newest entries win.
const MaxMessageHistory = 10

// ChatMessage is one transcript entry exchanged with the generation service.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// GenerateRequest is the request body for one generation attempt.
// Immutable once sent.
type GenerateRequest struct {
	Password       string        `json:"password"`
	VisitorID      VisitorID     `json:"visitorId"`
	Prompt         string        `json:"prompt"`
	ExistingCode   string        `json:"existingCode,omitempty"`
	MessageHistory []ChatMessage `json:"messageHistory,omitempty"`
}

// Validate checks the request is well formed. The password is only checked
// for presence here; the auth gate decides whether it is valid.
func (r GenerateRequest) Validate() error {
	if strings.TrimSpace(r.Password) == "" {
		return ErrPasswordRequired
	}
	if err := ValidateVisitorID(r.VisitorID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// ClampHistory returns the newest MaxMessageHistory entries in order.
func ClampHistory(history []ChatMessage) []ChatMessage {
	if len(history) <= MaxMessageHistory {
		return history
	}
	return history[len(history)-MaxMessageHistory:]
}

// ShareRequest asks the server to publish a finished snippet.
type ShareRequest struct {
	VisitorID VisitorID    `json:"visitorId"`
	Name      TemplateName `json:"name,omitempty"`
	Code      string       `json:"code"`
}

// ShareResponse reports the public URL for a published snippet.
type ShareResponse struct {
	Token ShareToken `json:"token"`
	URL   string     `json:"url"`
}
