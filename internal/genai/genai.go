// Package genai provides GenAI-backed chat and embedding operations using the
// OpenAI API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Default models used when none are configured.
const (
	// DefaultChatModel is the chat completion model.
	DefaultChatModel = openai.ChatModelGPT4o
	// DefaultEmbeddingModel is the embedding model used for retrieval.
	DefaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small
)

// ClientInterface defines the GenAI operations consumed by the orchestrator
// and the knowledge index. Failures are always surfaced as errors; an empty
// reply is never returned silently.
type ClientInterface interface {
	// GenerateWithMessages produces a chat completion for the given messages.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)

	// GenerateEmbedding produces an embedding vector for the given text.
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey         string
	Model          string
	EmbeddingModel string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the OPENAI_API_KEY
// environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(o *Opts) { o.EmbeddingModel = model }
}

// Client wraps the OpenAI API for chat completions and embeddings.
type Client struct {
	client         openai.Client
	model          shared.ChatModel
	embeddingModel openai.EmbeddingModel
}

// NewClient initializes a GenAI client, falling back to the OPENAI_API_KEY
// environment variable when no key option is provided.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI NewClient missing API key")
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	c := &Client{
		client:         openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:          DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	if cfg.Model != "" {
		c.model = shared.ChatModel(cfg.Model)
	}
	if cfg.EmbeddingModel != "" {
		c.embeddingModel = openai.EmbeddingModel(cfg.EmbeddingModel)
	}
	slog.Debug("GenAI client created", "model", c.model, "embeddingModel", c.embeddingModel)
	return c, nil
}

// GenerateWithMessages produces a chat completion for the given messages.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("GenAI chat completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("chat completion returned empty content")
	}
	slog.Debug("GenAI chat completion succeeded", "model", c.model, "messages", len(messages), "reply_length", len(content))
	return content, nil
}

// GenerateEmbedding produces an embedding vector for the given text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		slog.Error("GenAI embedding failed", "error", err, "model", c.embeddingModel)
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding returned no data")
	}
	return resp.Data[0].Embedding, nil
}
