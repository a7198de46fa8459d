// Package ollama talks to an Ollama server to explain run reports.
package ollama

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/bimmerbailey/sift/internal/errors"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "llama3.2"

// Client wraps the Ollama API client.
type Client struct {
	client *api.Client
	config Config
	logger *slog.Logger
}

// Config holds Ollama-specific configuration.
type Config struct {
	// Host is the Ollama API endpoint (e.g., "http://localhost:11434").
	// Empty uses OLLAMA_HOST or the library default.
	Host string

	// Model is the default model to use (e.g., "llama3.2")
	Model string
}

// Message represents a single message in a conversation.
type Message struct {
	Role    string
	Content string
}

// ChatOptions configures chat behavior.
type ChatOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Response represents a complete LLM response.
type Response struct {
	Content      string
	Model        string
	TokensPrompt int
	TokensTotal  int
}

// StreamEvent represents a single event in a streaming response.
type StreamEvent struct {
	Content string
	Done    bool
	Error   error
}

// Common errors
var (
	ErrUnavailable     = errors.New("ollama is not reachable")
	ErrContextCanceled = errors.New("operation was canceled")
)

// New creates a client. No request is made until the first call.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "create ollama client"), ErrUnavailable)
	}

	if cfg.Host != "" {
		parsedURL, err := url.Parse(cfg.Host)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ollama host %q", cfg.Host)
		}
		client = api.NewClient(parsedURL, http.DefaultClient)
		logger.Debug("created ollama client with explicit host", "host", cfg.Host)
	} else {
		logger.Debug("created ollama client from environment")
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Client{client: client, config: cfg, logger: logger}, nil
}

// Model returns the default model name.
func (c *Client) Model() string { return c.config.Model }

func (c *Client) request(messages []Message, opts *ChatOptions, stream bool) (*api.ChatRequest, error) {
	if len(messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}

	model := c.config.Model
	temperature := float32(0)
	maxTokens := 0
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		temperature = opts.Temperature
		maxTokens = opts.MaxTokens
	}

	msgs := make([]api.Message, len(messages))
	for i, msg := range messages {
		msgs[i] = api.Message{Role: msg.Role, Content: msg.Content}
	}

	req := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Options: map[string]any{
			"temperature": temperature,
		},
		Stream: &stream,
	}
	if maxTokens > 0 {
		req.Options["num_predict"] = maxTokens
	}
	return req, nil
}

// Chat sends messages and returns the complete response.
func (c *Client) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	req, err := c.request(messages, opts, false)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("sending chat request", "model", req.Model, "messages", len(messages))

	var response api.ChatResponse
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err == nil && !response.Done {
		err = incomplete(ctx)
	}
	if err != nil {
		return nil, c.classify(ctx, err)
	}

	return &Response{
		Content:      response.Message.Content,
		Model:        response.Model,
		TokensPrompt: response.PromptEvalCount,
		TokensTotal:  response.PromptEvalCount + response.EvalCount,
	}, nil
}

// ChatStream sends messages and returns a channel of streaming events. The
// channel is closed when the stream ends; a failure is the last event.
func (c *Client) ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamEvent, error) {
	req, err := c.request(messages, opts, true)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("starting chat stream", "model", req.Model, "messages", len(messages))

	events := make(chan StreamEvent, 10)
	go func() {
		defer close(events)

		done := false
		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if resp.Message.Content != "" || resp.Done {
				events <- StreamEvent{Content: resp.Message.Content, Done: resp.Done}
			}
			if resp.Done {
				done = true
				c.logger.Debug("chat stream completed",
					"model", resp.Model,
					"prompt_tokens", resp.PromptEvalCount,
					"total_tokens", resp.EvalCount)
			}
			return nil
		})
		// The client stops reading on a cancelled body without reporting it.
		if err == nil && !done {
			err = incomplete(ctx)
		}
		if err != nil {
			events <- StreamEvent{Error: c.classify(ctx, err), Done: true}
		}
	}()

	return events, nil
}

// incomplete is the error for a chat that ended without its final chunk.
func incomplete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("chat ended before the final response")
}

func (c *Client) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return errors.Mark(errors.Wrap(err, "operation was canceled"), ErrContextCanceled)
	}
	c.logger.Error("chat request failed", "error", err)
	return errors.WithHint(errors.Mark(errors.Wrap(err, "ollama chat"), ErrUnavailable),
		"is `ollama serve` running? set llm.ollama.host or OLLAMA_HOST")
}

// Heartbeat checks if the Ollama service is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return errors.WithHint(errors.Mark(errors.Wrap(err, "ollama heartbeat"), ErrUnavailable),
			"start the server with `ollama serve`")
	}
	return nil
}

// ModelAvailable reports whether model has been pulled.
func (c *Client) ModelAvailable(ctx context.Context, model string) (bool, error) {
	listResp, err := c.client.List(ctx)
	if err != nil {
		return false, errors.Mark(errors.Wrap(err, "list models"), ErrUnavailable)
	}
	for _, info := range listResp.Models {
		if info.Name == model || info.Model == model {
			return true, nil
		}
	}
	c.logger.Debug("model not found", "model", model, "available_count", len(listResp.Models))
	return false, nil
}
