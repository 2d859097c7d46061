package ai

import "context"

// Responder is the text-completion collaborator used before a chat is
// handed off to a human. It knows nothing about sessions or persistence.
type Responder interface {
	Respond(ctx context.Context, history []Message) (string, error)
}

// Message is the transport-neutral dialog format passed to the Responder.
type Message struct {
	Role string // "user" | "assistant" | "system"
	Text string
}
