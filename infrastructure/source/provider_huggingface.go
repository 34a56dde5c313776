package source

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ahrav/imgverdict/internal/domain"
)

// Hugging Face provider constants.
const (
	// HuggingFaceDefaultModel is an image classifier with "artificial" and
	// "human" labels.
	HuggingFaceDefaultModel = "umm-maybe/AI-image-detector"

	huggingFaceInferenceURL = "https://api-inference.huggingface.co/models/"

	// huggingFaceCaptionScore is used when only the generated caption
	// mentions synthetic imagery.
	huggingFaceCaptionScore = 0.7

	// huggingFaceBaselineScore is used when classification ran but no
	// label or caption points at synthetic imagery.
	huggingFaceBaselineScore = 0.2
)

// DefaultHuggingFaceLabels are the label keywords that indicate synthetic
// imagery.
var DefaultHuggingFaceLabels = []string{
	"artificial", "generated", "ai generated", "digital art", "rendered", "computer", "drawing",
}

func init() {
	RegisterProviderFactory("huggingface", newHuggingFaceProvider)
}

// huggingFaceProvider posts the raw image to the inference API. It accepts
// both the plain classifier output ([{label, score}]) and the wrapped form
// {results: [...], generated_text: "..."} produced by captioning proxies.
type huggingFaceProvider struct {
	BaseProvider
	http   httpCaller
	url    string
	apiKey string
	labels *KeywordMatcher
}

func newHuggingFaceProvider(config ClientConfig) (CoreSource, error) {
	model := config.Model
	if model == "" {
		model = HuggingFaceDefaultModel
	}
	url, err := endpoint(config.BaseURL, huggingFaceInferenceURL+strings.TrimPrefix(model, "/"))
	if err != nil {
		return nil, err
	}

	labels := config.Labels
	if len(labels) == 0 {
		labels = DefaultHuggingFaceLabels
	}

	return &huggingFaceProvider{
		BaseProvider: newBaseProvider(config, "huggingface"),
		http:         newHTTPCaller(config.HTTPClient, "huggingface"),
		url:          url,
		apiKey:       config.APIKey,
		labels:       NewKeywordMatcher(labels),
	}, nil
}

// Score implements CoreSource.
func (p *huggingFaceProvider) Score(ctx context.Context, img domain.Image) (float64, error) {
	if len(img.Data) == 0 {
		return 0, ErrEmptyImage
	}
	body, err := p.http.postBinary(ctx, p.url, bearer(p.apiKey), img)
	if err != nil {
		return 0, err
	}
	return p.interpret(body)
}

func (p *huggingFaceProvider) interpret(body []byte) (float64, error) {
	parsed := gjson.ParseBytes(body)

	results := parsed
	if !parsed.IsArray() {
		results = parsed.Get("results")
	}
	if !results.IsArray() {
		if e := parsed.Get("error"); e.Exists() {
			return 0, p.http.classifier.NoSignal("vendor reported error: " + e.String())
		}
		return 0, p.http.classifier.InvalidResponse("missing classification results")
	}

	best := 0.0
	for _, item := range results.Array() {
		if p.labels.Match(item.Get("label").String()) {
			if s := item.Get("score").Float(); s > best {
				best = s
			}
		}
	}
	if best > 0 {
		return best, nil
	}

	if caption := parsed.Get("generated_text"); caption.Exists() && p.labels.Match(caption.String()) {
		return huggingFaceCaptionScore, nil
	}
	return huggingFaceBaselineScore, nil
}
