package llm

import (
	"context"
	"errors"
)

var (
	ErrUnavailable = errors.New("llm unavailable")
	ErrRateLimited = errors.New("llm rate limited")
)

type Turn struct {
	Role    string
	Content string
}

type MessageInput struct {
	ChatID       string
	DisplayName  string
	Text         string
	SystemPrompt string
	Model        string
	History      []Turn
}

type Responder interface {
	Reply(ctx context.Context, input MessageInput) (string, error)
}
