package ai

import (
	openai "github.com/sashabaranov/go-openai"
)

// Options tune the upstream completion request.
type Options struct {
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

type Generator struct {
	client *openai.Client
	opts   Options
}

// NewGenerator builds a generator against the OpenAI API, or any compatible
// endpoint when BaseURL is set.
func NewGenerator(apiKey string, opts Options) *Generator {
	config := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4o
	}
	return &Generator{
		client: openai.NewClientWithConfig(config),
		opts:   opts,
	}
}

// Model returns the model name requests are sent to.
func (g *Generator) Model() string {
	return g.opts.Model
}
