package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"appgen_server/internal/ai/prompts"
)

// ChunkStream yields raw text fragments of a model response in order.
// Recv returns io.EOF once the response is complete.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}

// StreamAppFiles asks the model for the application's files and returns
// the response as a stream of text chunks. No retry is attempted.
func (g *Generator) StreamAppFiles(ctx context.Context, appName, description string) (ChunkStream, error) {
	req := openai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompts.GetAppGenerationPrompt(appName, description)},
		},
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
		Stream:      true,
	}

	log.Printf("Opening completion stream for %q with model %s", appName, g.opts.Model)
	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion stream failed: %w", err)
	}
	return &completionStream{stream: stream}, nil
}

type completionStream struct {
	stream *openai.ChatCompletionStream
}

func (s *completionStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

func (s *completionStream) Close() error {
	return s.stream.Close()
}
