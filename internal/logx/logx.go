package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/snipforge/schema"
)

type contextKey int

const (
	visitorKey contextKey = iota
	sessionKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithVisitor annotates the logger with the visitor id if present.
func WithVisitor(ctx context.Context, visitorID schema.VisitorID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if visitorID != "" {
		if current, ok := ctx.Value(visitorKey).(schema.VisitorID); ok && current == visitorID {
			return log
		}
		log = log.With("visitor", visitorID)
	}
	return log
}

// WithVisitorSession annotates the logger with visitor and session identifiers.
func WithVisitorSession(ctx context.Context, visitorID schema.VisitorID, sessionID schema.SessionID) pslog.Logger {
	log := WithVisitor(ctx, visitorID)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithTemplate annotates the logger with template metadata when available.
func WithTemplate(log pslog.Logger, id schema.TemplateID, name schema.TemplateName) pslog.Logger {
	if id != "" {
		log = log.With("template", id)
	}
	if name != "" {
		log = log.With("template_name", name)
	}
	return log
}

// ContextWithVisitor stores the visitor marker on the context for log de-duplication.
func ContextWithVisitor(ctx context.Context, visitorID schema.VisitorID) context.Context {
	if ctx == nil || visitorID == "" {
		return ctx
	}
	return context.WithValue(ctx, visitorKey, visitorID)
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithVisitorLogger attaches the logger and visitor marker to the context.
func ContextWithVisitorLogger(ctx context.Context, log pslog.Logger, visitorID schema.VisitorID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithVisitor(ctx, visitorID)
}
