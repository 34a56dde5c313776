package source

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ahrav/imgverdict/internal/domain"
)

// visionPrompt asks a multimodal model for a single machine-readable
// probability.
const visionPrompt = `You are an image forensics assistant. Estimate the probability that the attached image was generated or substantially edited by an AI image model.
If you cannot judge the image, answer with null.
Respond with only a JSON object of the form {"ai_probability": <number between 0 and 1 or null>}.`

// visionMaxTokens bounds the reply; the expected answer is a few tokens.
const visionMaxTokens = 64

// parseProbabilityReply extracts ai_probability from a model reply. The
// reply may wrap the JSON object in prose or a code fence.
func parseProbabilityReply(reply string, ec *ErrorClassifier) (float64, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return 0, ec.InvalidResponse("reply contains no JSON object")
	}
	obj := reply[start : end+1]
	if !gjson.Valid(obj) {
		return 0, ec.InvalidResponse("reply contains malformed JSON")
	}

	prob := gjson.Get(obj, "ai_probability")
	switch {
	case !prob.Exists():
		return 0, ec.InvalidResponse("reply has no ai_probability")
	case prob.Type == gjson.Null:
		return 0, ec.NoSignal("model declined to judge the image")
	}

	score, ok := domain.ParseScore(prob.Value())
	if !ok {
		return 0, ec.InvalidResponse("unparseable ai_probability " + prob.Raw)
	}
	return score, nil
}

// imageMediaType returns the MIME type to declare for img.
func imageMediaType(img domain.Image) string {
	if img.MIMEType != "" {
		return img.MIMEType
	}
	return "image/jpeg"
}
