// Package openai adapts the OpenAI chat completion API (or any compatible
// endpoint) to the ports.ModelClient contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	backend "github.com/sashabaranov/go-openai"

	"github.com/reveriehq/reverie/pkg/ports"
)

// Client implements ports.StreamingModelClient.
type Client struct {
	client *backend.Client
	config *Config
}

// NewClient creates a client from the given config.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clientCfg := backend.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		clientCfg.OrgID = cfg.OrgID
	}
	return &Client{
		client: backend.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

// Complete performs one chat completion call.
func (c *Client) Complete(ctx context.Context, req ports.ChatRequest) (ports.ChatResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.convertRequest(req))
	if err != nil {
		return ports.ChatResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.ChatResponse{}, fmt.Errorf("chat completion returned no choices")
	}
	return ports.ChatResponse{Content: resp.Choices[0].Message.Content}, nil
}

// CompleteStream performs one streamed chat completion call, invoking
// onChunk per content delta and returning the accumulated response.
func (c *Client) CompleteStream(ctx context.Context, req ports.ChatRequest, onChunk func(delta string)) (ports.ChatResponse, error) {
	streamReq := c.convertRequest(req)
	streamReq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, streamReq)
	if err != nil {
		return ports.ChatResponse{}, fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ports.ChatResponse{}, fmt.Errorf("chat completion stream recv failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}
	return ports.ChatResponse{Content: sb.String()}, nil
}

func (c *Client) convertRequest(req ports.ChatRequest) backend.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	messages := make([]backend.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, backend.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	out := backend.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		out.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	return out
}
