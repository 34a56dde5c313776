package source

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/ahrav/imgverdict/internal/domain"
)

// AI or Not provider constants.
const (
	// AIOrNotDefaultURL is the image report endpoint.
	AIOrNotDefaultURL = "https://api.ai-or-not.com/v1/reports/image"

	// Scores used when the report only carries a detection flag.
	aiOrNotDetectedScore    = 0.95
	aiOrNotNotDetectedScore = 0.05
)

func init() {
	RegisterProviderFactory("aiornot", newAIOrNotProvider)
}

// aiOrNotProvider uploads the image and reads report.ai.confidence, falling
// back to the boolean report.ai.is_detected of older response formats.
type aiOrNotProvider struct {
	BaseProvider
	http   httpCaller
	url    string
	apiKey string
}

func newAIOrNotProvider(config ClientConfig) (CoreSource, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	url, err := endpoint(config.BaseURL, AIOrNotDefaultURL)
	if err != nil {
		return nil, err
	}
	return &aiOrNotProvider{
		BaseProvider: newBaseProvider(config, "aiornot"),
		http:         newHTTPCaller(config.HTTPClient, "aiornot"),
		url:          url,
		apiKey:       config.APIKey,
	}, nil
}

// Score implements CoreSource.
func (p *aiOrNotProvider) Score(ctx context.Context, img domain.Image) (float64, error) {
	if len(img.Data) == 0 {
		return 0, ErrEmptyImage
	}
	body, err := p.http.postMultipart(ctx, p.url, bearer(p.apiKey), "file", img, nil)
	if err != nil {
		return 0, err
	}
	return parseAIOrNot(body, p.http.classifier)
}

func parseAIOrNot(body []byte, ec *ErrorClassifier) (float64, error) {
	ai := gjson.GetBytes(body, "report.ai")
	if !ai.Exists() {
		return 0, ec.InvalidResponse("missing report.ai")
	}
	if c := ai.Get("confidence"); c.Type == gjson.Number {
		return c.Float(), nil
	}
	if d := ai.Get("is_detected"); d.IsBool() {
		if d.Bool() {
			return aiOrNotDetectedScore, nil
		}
		return aiOrNotNotDetectedScore, nil
	}
	return 0, ec.NoSignal("report carries neither confidence nor is_detected")
}
