package ollama

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimmerbailey/sift/internal/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer serves chat on /api/chat, a fixed model list on /api/tags and
// the heartbeat on /.
func fakeServer(t *testing.T, chat http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	if chat != nil {
		mux.HandleFunc("/api/chat", chat)
	}
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "llama3.2:latest", "model": "llama3.2"},
				{"name": "medllama2:latest", "model": "medllama2"},
			},
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("Ollama is running"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := New(Config{Host: server.URL, Model: "test-model"}, quietLogger())
	require.NoError(t, err)
	return client
}

func writeChunks(w http.ResponseWriter, chunks ...map[string]any) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, chunk := range chunks {
		if err := enc.Encode(chunk); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantModel string
		wantErr   bool
	}{
		{"explicit model", Config{Host: "http://localhost:11434", Model: "medllama2"}, "medllama2", false},
		{"default model", Config{Host: "http://localhost:11434"}, DefaultModel, false},
		{"invalid host", Config{Host: "://invalid-url"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config, quietLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, client.Model())
		})
	}
}

func TestNewNilLogger(t *testing.T) {
	_, err := New(Config{Host: "http://localhost:11434"}, nil)
	assert.Error(t, err)
}

func TestChat(t *testing.T) {
	client := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeChunks(w, map[string]any{
			"model":             req["model"],
			"message":           map[string]string{"role": "assistant", "content": "Two files carried burned-in text."},
			"done":              true,
			"prompt_eval_count": 10,
			"eval_count":        20,
		})
	})

	resp, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "Why were files rejected?"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Two files carried burned-in text.", resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 10, resp.TokensPrompt)
	assert.Equal(t, 30, resp.TokensTotal)
}

func TestChatEmptyMessages(t *testing.T) {
	client, err := New(Config{Host: "http://localhost:11434"}, quietLogger())
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), nil, nil)
	assert.Error(t, err)

	_, err = client.ChatStream(context.Background(), []Message{}, nil)
	assert.Error(t, err)
}

func TestChatOptions(t *testing.T) {
	requests := make(chan map[string]any, 1)
	client := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests <- req
		writeChunks(w, map[string]any{
			"model":   req["model"],
			"message": map[string]string{"content": "ok"},
			"done":    true,
		})
	})

	resp, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "test"}},
		&ChatOptions{Model: "custom-model", Temperature: 0.5, MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "custom-model", resp.Model)
	got := <-requests
	options, ok := got["options"].(map[string]any)
	require.True(t, ok, "request carried no options: %v", got)
	assert.InDelta(t, 0.5, options["temperature"], 0.001)
	assert.EqualValues(t, 100, options["num_predict"])
}

func TestChatStream(t *testing.T) {
	client := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w,
			map[string]any{"message": map[string]string{"content": "Rejected "}, "done": false},
			map[string]any{"message": map[string]string{"content": "by "}, "done": false},
			map[string]any{"message": map[string]string{"content": "policy."}, "done": true, "prompt_eval_count": 5, "eval_count": 15},
		)
	})

	stream, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "Explain"}}, nil)
	require.NoError(t, err)

	var content strings.Builder
	done := 0
	for event := range stream {
		require.NoError(t, event.Error)
		content.WriteString(event.Content)
		if event.Done {
			done++
		}
	}

	assert.Equal(t, "Rejected by policy.", content.String())
	assert.Equal(t, 1, done)
}

func TestChatStreamCancellation(t *testing.T) {
	client := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for i := 0; i < 100; i++ {
			if err := enc.Encode(map[string]any{"message": map[string]string{"content": "chunk"}, "done": false}); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			time.Sleep(10 * time.Millisecond)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.ChatStream(ctx, []Message{{Role: "user", Content: "Explain"}}, nil)
	require.NoError(t, err)

	events := 0
	var last StreamEvent
	for event := range stream {
		events++
		if events == 3 {
			cancel()
		}
		last = event
	}

	assert.GreaterOrEqual(t, events, 3)
	require.Error(t, last.Error)
	assert.True(t, errors.Is(last.Error, ErrContextCanceled), "got %v", last.Error)
}

func TestChatStreamTruncated(t *testing.T) {
	client := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, map[string]any{"message": map[string]string{"content": "Rejected "}, "done": false})
	})

	stream, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "Explain"}}, nil)
	require.NoError(t, err)

	var content strings.Builder
	var last StreamEvent
	for event := range stream {
		content.WriteString(event.Content)
		last = event
	}
	assert.Equal(t, "Rejected ", content.String())
	require.Error(t, last.Error)
	assert.True(t, last.Done)
	assert.True(t, errors.Is(last.Error, ErrUnavailable))
}

func TestChatTruncated(t *testing.T) {
	client := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, map[string]any{"message": map[string]string{"content": "partial"}, "done": false})
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "Explain"}}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestChatStreamServerError(t *testing.T) {
	client := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not loaded"}`, http.StatusInternalServerError)
	})

	stream, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "Explain"}}, nil)
	require.NoError(t, err)

	var last StreamEvent
	for event := range stream {
		last = event
	}
	require.Error(t, last.Error)
	assert.True(t, errors.Is(last.Error, ErrUnavailable))
	assert.Contains(t, errors.FlattenHints(last.Error), "ollama serve")
}

func TestHeartbeat(t *testing.T) {
	client := fakeServer(t, nil)
	assert.NoError(t, client.Heartbeat(context.Background()))
}

func TestHeartbeatUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	host := server.URL
	server.Close()

	client, err := New(Config{Host: host}, quietLogger())
	require.NoError(t, err)

	err = client.Heartbeat(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestModelAvailable(t *testing.T) {
	client := fakeServer(t, nil)

	tests := map[string]bool{
		"llama3.2":         true,
		"llama3.2:latest":  true,
		"medllama2":        true,
		"mistral":          false,
		"medllama2:latest": true,
	}
	for model, want := range tests {
		t.Run(model, func(t *testing.T) {
			got, err := client.ModelAvailable(context.Background(), model)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}
