package ai

import "context"

// Message is one turn of request context in provider-neutral form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is everything a provider needs for one completion. Context is the
// full ordered history, most recent last; its final element is the user turn
// being answered. UserText repeats that turn for adapters that send it apart.
type Request struct {
	ModelID    string
	UserText   string
	Context    []Message
	TokenLimit int
}

// Generator is the generation capability: one request in, assistant text out.
// Non-success provider responses must come back as descriptive errors.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// messagesFor returns the wire history for req, falling back to UserText when
// the caller sent no context.
func messagesFor(req Request) []Message {
	if len(req.Context) > 0 {
		return req.Context
	}
	if req.UserText == "" {
		return nil
	}
	return []Message{{Role: "user", Content: req.UserText}}
}
