package source

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/ahrav/imgverdict/internal/domain"
)

// GeminiDefaultModel is the default Gemini model.
const GeminiDefaultModel = "gemini-2.5-flash"

func init() {
	RegisterProviderFactory("gemini", newGeminiProvider)
}

// geminiProvider asks a Gemini model for a probability.
type geminiProvider struct {
	BaseProvider
	client          *genai.Client
	model           string
	errorClassifier *ErrorClassifier
}

func newGeminiProvider(config ClientConfig) (CoreSource, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GeminiDefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: config.HTTPClient,
	}
	if config.BaseURL != "" {
		u, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: u}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiProvider{
		BaseProvider:    newBaseProvider(config, "gemini"),
		client:          client,
		model:           model,
		errorClassifier: &ErrorClassifier{Provider: "gemini"},
	}, nil
}

// Score implements CoreSource.
func (p *geminiProvider) Score(ctx context.Context, img domain.Image) (float64, error) {
	if len(img.Data) == 0 {
		return 0, ErrEmptyImage
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, imageMediaType(img)),
			genai.NewPartFromText(visionPrompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		MaxOutputTokens:  visionMaxTokens,
		ResponseMIMEType: "application/json",
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return 0, p.handleError(err)
	}

	text := resp.Text()
	if text == "" {
		return 0, NewProviderError("gemini", ErrorTypeInvalidResponse, 0, "", ErrEmptyResponse)
	}
	return parseProbabilityReply(text, p.errorClassifier)
}

// handleError classifies errors from the Gemini API.
func (p *geminiProvider) handleError(err error) error {
	if isContextError(err) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return p.errorClassifier.ClassifyHTTPError(apiErr.Code, apiErr.Message, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return p.errorClassifier.ClassifyHTTPError(apiErrPtr.Code, apiErrPtr.Message, err)
	}

	return p.errorClassifier.ClassifyTransportError(err)
}
