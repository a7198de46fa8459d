package explain

import (
	"context"
	"io"
	"strings"

	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/llm/ollama"
)

// ErrNothingToExplain is returned when a report has no rejected or failed
// entries.
var ErrNothingToExplain = errors.New("report has no rejected or failed files")

// Streamer is the part of the ollama client that Explain needs.
type Streamer interface {
	ChatStream(ctx context.Context, messages []ollama.Message, opts *ollama.ChatOptions) (<-chan ollama.StreamEvent, error)
}

const systemPrompt = `You are an assistant helping an operator understand why files were blocked or failed in a medical-imaging de-identification pipeline.

Guidelines:
1. Only reference information present in the provided summary
2. Distinguish observations ("the report shows...") from inferences ("this suggests...")
3. Never invent file names, tags or error messages
4. Values in square brackets such as [EMAIL:5c1e] were redacted; do not guess them
5. Keep the answer short and structured

Your answer should include:
- Overview: what went wrong, in one or two sentences
- Rejections: which de-identification rules appear to be triggering, by group
- Failures: likely causes of the errors, by group
- Next steps: what to check in the preprocessors, policy or input files`

// Messages builds the conversation for s.
func Messages(s *Summary) []ollama.Message {
	var sb strings.Builder
	sb.WriteString("Explain the following summary of a de-identification run:\n\n")
	sb.WriteString(s.Text())
	return []ollama.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: sb.String()},
	}
}

// Explain streams the model's explanation of s to w and returns the full
// text.
func Explain(ctx context.Context, st Streamer, s *Summary, opts *ollama.ChatOptions, w io.Writer) (string, error) {
	if s.Empty() {
		return "", ErrNothingToExplain
	}
	stream, err := st.ChatStream(ctx, Messages(s), opts)
	if err != nil {
		return "", errors.Wrap(err, "start explanation stream")
	}

	var full strings.Builder
	for event := range stream {
		if event.Error != nil {
			return full.String(), event.Error
		}
		if event.Content == "" {
			continue
		}
		full.WriteString(event.Content)
		if w != nil {
			if _, err := io.WriteString(w, event.Content); err != nil {
				return full.String(), err
			}
		}
	}
	return full.String(), nil
}
