package ports

import "context"

// Message roles as expected by chat completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat transcript entry sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes one model invocation.
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse is the accumulated model output for one invocation.
type ChatResponse struct {
	Content string `json:"content"`
}

// ModelClient is the model-invocation capability consumed by the model node.
// Timeout and retry policy belong to the node that calls it, not to the
// workflow engine.
type ModelClient interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// StreamingModelClient is optionally implemented by clients that can deliver
// the response incrementally. Chunks are raw content deltas; the full
// response is still the concatenation of all chunks.
type StreamingModelClient interface {
	ModelClient
	CompleteStream(ctx context.Context, req ChatRequest, onChunk func(delta string)) (ChatResponse, error)
}
