package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/ahrav/imgverdict/internal/domain"
)

// Google Cloud Vision provider constants.
const (
	// visionLabelBase and visionLabelSpan map the best AI label score s to
	// visionLabelBase + visionLabelSpan*s, keeping labelled images in [0.5, 1].
	visionLabelBase = 0.5
	visionLabelSpan = 0.5

	// visionSpoofScore is used when safe search rates the image a likely spoof.
	visionSpoofScore = 0.7

	// visionBaselineScore is used when Vision answered but found nothing
	// pointing at synthetic imagery.
	visionBaselineScore = 0.2

	visionMaxLabels = 20
)

// DefaultVisionLabels are the label keywords that indicate synthetic imagery.
var DefaultVisionLabels = []string{"artificial", "generated", "synthetic", "rendered", "digital art"}

func init() {
	RegisterProviderFactory("google", newVisionProvider)
}

// visionProvider classifies images with Cloud Vision label detection and
// safe search. Vision has no AI detector, so the score is derived from
// labels such as "digital art" and from the spoof likelihood.
type visionProvider struct {
	BaseProvider
	svc        *vision.Service
	labels     *KeywordMatcher
	classifier *ErrorClassifier
}

func newVisionProvider(config ClientConfig) (CoreSource, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		u, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		opts = append(opts, option.WithEndpoint(u))
	}

	svc, err := vision.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vision client: %w", err)
	}

	labels := config.Labels
	if len(labels) == 0 {
		labels = DefaultVisionLabels
	}

	return &visionProvider{
		BaseProvider: newBaseProvider(config, "google"),
		svc:          svc,
		labels:       NewKeywordMatcher(labels),
		classifier:   &ErrorClassifier{Provider: "google"},
	}, nil
}

// Score implements CoreSource.
func (p *visionProvider) Score(ctx context.Context, img domain.Image) (float64, error) {
	if len(img.Data) == 0 {
		return 0, ErrEmptyImage
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image: &vision.Image{Content: base64.StdEncoding.EncodeToString(img.Data)},
			Features: []*vision.Feature{
				{Type: "LABEL_DETECTION", MaxResults: visionMaxLabels},
				{Type: "SAFE_SEARCH_DETECTION"},
			},
		}},
	}

	resp, err := p.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return 0, p.handleError(err)
	}
	return p.interpret(resp)
}

// interpret derives a score from an annotate response.
func (p *visionProvider) interpret(resp *vision.BatchAnnotateImagesResponse) (float64, error) {
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return visionBaselineScore, nil
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return 0, p.classifier.InvalidResponse(r.Error.Message)
	}
	if len(r.LabelAnnotations) == 0 {
		return visionBaselineScore, nil
	}

	best, found := 0.0, false
	for _, l := range r.LabelAnnotations {
		if l == nil || !p.labels.Match(l.Description) {
			continue
		}
		found = true
		if l.Score > best {
			best = l.Score
		}
	}
	if found {
		return visionLabelBase + visionLabelSpan*best, nil
	}

	if s := r.SafeSearchAnnotation; s != nil && (s.Spoof == "LIKELY" || s.Spoof == "VERY_LIKELY") {
		return visionSpoofScore, nil
	}
	return visionBaselineScore, nil
}

func (p *visionProvider) handleError(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		return p.classifier.ClassifyHTTPError(apiErr.Code, message, err)
	}

	return p.classifier.ClassifyTransportError(err)
}
