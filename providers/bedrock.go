package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider runs Anthropic Claude models through AWS Bedrock's
// InvokeModel API.
type BedrockProvider struct {
	Base
	client bedrockInvoker
	region string
}

// NewBedrock creates a new AWS Bedrock provider. Region defaults to
// us-east-1. When both APIKey and SecretKey are set they are used as a static
// access key pair, otherwise the default AWS credential chain applies.
func NewBedrock(opts Options) (*BedrockProvider, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(newHTTPClient(opts.Timeout)),
	}
	if opts.APIKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.APIKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.Retryer = aws.NopRetryer{}
		if opts.BaseURL != "" {
			o.BaseEndpoint = aws.String(opts.BaseURL)
		}
	})
	return &BedrockProvider{
		Base:   Base{name: NameBedrock, baseURL: opts.BaseURL},
		client: client,
		region: region,
	}, nil
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type bedrockAnthropicResponse struct {
	ID      string                  `json:"id"`
	Content []anthropicContentBlock `json:"content"`
	Usage   anthropicUsage          `json:"usage"`
}

// Generate invokes an Anthropic model on Bedrock.
func (p *BedrockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(bedrockAnthropicRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        req.MaxTokens,
		System:           req.System,
		Messages:         []anthropicMessage{{Role: RoleUser, Content: req.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, p.wrapError(err)
	}

	var anthropicResp bedrockAnthropicResponse
	if err := json.Unmarshal(output.Body, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	resp := &Response{
		ID:    anthropicResp.ID,
		Model: req.Model,
		Usage: Usage{
			InputTokens:  anthropicResp.Usage.InputTokens,
			OutputTokens: anthropicResp.Usage.OutputTokens,
		},
	}
	if len(anthropicResp.Content) > 0 {
		resp.Text = anthropicResp.Content[0].Text
	}
	return resp, nil
}

// wrapError turns an SDK error carrying an HTTP response into *APIError.
func (p *BedrockProvider) wrapError(err error) error {
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		return &APIError{Provider: p.name, StatusCode: statusErr.HTTPStatusCode(), Body: err.Error()}
	}
	return fmt.Errorf("bedrock invoke failed: %w", err)
}
