package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/imgverdict/internal/domain"
)

// AnthropicDefaultModel is the default vision-capable Claude model.
const AnthropicDefaultModel = "claude-3-5-haiku-latest"

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider asks a Claude model for a probability.
type anthropicProvider struct {
	BaseProvider
	client          anthropic.Client
	model           string
	errorClassifier *ErrorClassifier
}

func newAnthropicProvider(config ClientConfig) (CoreSource, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// Retries are owned by the middleware chain.
		option.WithMaxRetries(0),
	}
	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}
	if config.BaseURL != "" {
		u, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		opts = append(opts, option.WithBaseURL(u))
	}

	return &anthropicProvider{
		BaseProvider:    newBaseProvider(config, "anthropic"),
		client:          anthropic.NewClient(opts...),
		model:           model,
		errorClassifier: &ErrorClassifier{Provider: "anthropic"},
	}, nil
}

// Score implements CoreSource.
func (p *anthropicProvider) Score(ctx context.Context, img domain.Image) (float64, error) {
	if len(img.Data) == 0 {
		return 0, ErrEmptyImage
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   visionMaxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(imageMediaType(img), base64.StdEncoding.EncodeToString(img.Data)),
				anthropic.NewTextBlock(visionPrompt),
			),
		},
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return 0, p.handleError(err)
	}

	var reply strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply.WriteString(text.Text)
		}
	}
	if reply.Len() == 0 {
		return 0, NewProviderError("anthropic", ErrorTypeInvalidResponse, 0, "", ErrEmptyResponse)
	}
	return parseProbabilityReply(reply.String(), p.errorClassifier)
}

// handleError classifies errors from the Anthropic API.
func (p *anthropicProvider) handleError(err error) error {
	if isContextError(err) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return p.errorClassifier.ClassifyHTTPError(apiErr.StatusCode, "request failed", err)
	}

	return p.errorClassifier.ClassifyTransportError(err)
}
