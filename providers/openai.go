package providers

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider generates text through the OpenAI chat completions API.
type OpenAIProvider struct {
	Base
	client openai.Client
}

// NewOpenAI creates a new OpenAI provider. The SDK's built-in retries are
// disabled; retry policy belongs to the caller.
func NewOpenAI(opts Options) (*OpenAIProvider, error) {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(newHTTPClient(opts.Timeout)),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIProvider{
		Base:   newBase(NameOpenAI, opts.APIKey, opts.BaseURL, "https://api.openai.com/v1"),
		client: openai.NewClient(reqOpts...),
	}, nil
}

// Generate sends the instruction as a system message followed by one user turn.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:  messages,
		Model:     req.Model,
		MaxTokens: openai.Int(int64(req.MaxTokens)),
	})
	if err != nil {
		var oaErr *openai.Error
		if errors.As(err, &oaErr) {
			body := oaErr.Message
			if body == "" {
				body = oaErr.Error()
			}
			return nil, &APIError{Provider: p.name, StatusCode: oaErr.StatusCode, Body: body}
		}
		return nil, err
	}

	resp := &Response{
		ID:    completion.ID,
		Model: completion.Model,
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	if len(completion.Choices) > 0 {
		resp.Text = completion.Choices[0].Message.Content
	}
	return resp, nil
}
