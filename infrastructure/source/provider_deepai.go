package source

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/ahrav/imgverdict/internal/domain"
)

// DeepAIDefaultURL is the AI-generated image detector endpoint.
const DeepAIDefaultURL = "https://api.deepai.org/api/ai-generated-image-detector"

func init() {
	RegisterProviderFactory("deepai", newDeepAIProvider)
}

// deepAIProvider uploads the image and reads ai_generated_probability.
// Responses that carry an error or flag their value as a default are
// treated as failures rather than scores.
type deepAIProvider struct {
	BaseProvider
	http   httpCaller
	url    string
	apiKey string
}

func newDeepAIProvider(config ClientConfig) (CoreSource, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	url, err := endpoint(config.BaseURL, DeepAIDefaultURL)
	if err != nil {
		return nil, err
	}
	return &deepAIProvider{
		BaseProvider: newBaseProvider(config, "deepai"),
		http:         newHTTPCaller(config.HTTPClient, "deepai"),
		url:          url,
		apiKey:       config.APIKey,
	}, nil
}

// Score implements CoreSource.
func (p *deepAIProvider) Score(ctx context.Context, img domain.Image) (float64, error) {
	if len(img.Data) == 0 {
		return 0, ErrEmptyImage
	}
	header := http.Header{}
	header.Set("api-key", p.apiKey)

	body, err := p.http.postMultipart(ctx, p.url, header, "image", img, nil)
	if err != nil {
		return 0, err
	}
	return parseDeepAI(body, p.http.classifier)
}

func parseDeepAI(body []byte, ec *ErrorClassifier) (float64, error) {
	if e := gjson.GetBytes(body, "error"); e.Exists() && e.String() != "" {
		return 0, ec.NoSignal("vendor reported error: " + e.String())
	}
	if gjson.GetBytes(body, "is_default_value").Bool() {
		return 0, ec.NoSignal("vendor flagged a default value")
	}

	prob := gjson.GetBytes(body, "ai_generated_probability")
	if !prob.Exists() {
		prob = gjson.GetBytes(body, "output.ai_generated_probability")
	}
	if !prob.Exists() {
		return 0, ec.InvalidResponse("missing ai_generated_probability")
	}

	// The probability may arrive as a number, a numeric string or a
	// percentage; ParseScore normalises all three.
	score, ok := domain.ParseScore(prob.Value())
	if !ok {
		return 0, ec.InvalidResponse("unparseable ai_generated_probability " + prob.Raw)
	}
	return score, nil
}
