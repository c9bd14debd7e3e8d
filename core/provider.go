package core

import (
	"context"

	"pkt.systems/snipforge/schema"
)

// Provider produces the structured generation result as an ordered event
// stream. How it is prompted is its own business; the only contract is
// that streamed code-chunk events concatenate to a prefix of the final
// done code, which is authoritative.
type Provider interface {
	Generate(ctx context.Context, req ProviderRequest) (ProviderStream, error)
}

// ProviderRequest carries the generation inputs after the gate has
// admitted the request.
type ProviderRequest struct {
	Prompt       string
	ExistingCode string
	History      []schema.ChatMessage
}

// ProviderStream yields events for one generation. The terminal done event
// carries message and code; the relay fills in the quota count.
type ProviderStream interface {
	Next(ctx context.Context) (schema.StreamEvent, error)
	Close() error
}
