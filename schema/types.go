package schema

// VisitorID identifies a device-scoped workshop attendee.
type VisitorID string

// SessionID identifies a single generation attempt for logging and tracing.
type SessionID string

// TemplateID identifies a code variant.
type TemplateID string

// TemplateName is the user-facing name of a code variant.
type TemplateName string

// PasswordID identifies a workshop password record.
type PasswordID string

// ShareToken is an opaque, URL-safe share-link token.
type ShareToken string
