// Package llmclient implements spec.md §4.4: a token-aware chat
// completion client with truncation, bounded concurrency, and retry.
// Grounded on original_source/adapters/llm_client.py's
// TokenAwareLLMClient (MAX_INPUT_TOKENS=4000, temperature 0.3/0.2,
// 3-attempt exponential backoff 1s-15s) and on
// internal/llm/openai/client.go's SDK-construction idiom — not its full
// streaming/SSE/tool-call machinery, which spec.md's two calls (plain
// chat, JSON-mode chat) never need.
package llmclient

import "context"

// Client is a chat-completion backend.
type Client interface {
	// Chat returns the assistant's plain-text reply.
	Chat(ctx context.Context, system, user string) (string, error)
	// ChatJSON returns the assistant's reply parsed as a JSON object.
	// A malformed reply surfaces apperrors.ErrInvalidResponse and is
	// never retried, unlike transport failures.
	ChatJSON(ctx context.Context, system, user string) (map[string]any, error)
}
