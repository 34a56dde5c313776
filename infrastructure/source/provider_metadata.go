package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bep/imagemeta"

	"github.com/ahrav/imgverdict/internal/domain"
)

// Metadata provider constants.
const (
	// metadataGeneratorScore is used when metadata names an AI generator.
	metadataGeneratorScore = 0.95

	// metadataCameraScore is used when metadata only names a camera.
	metadataCameraScore = 0.2
)

// DefaultGeneratorFingerprints are substrings that generators and editors
// leave in EXIF, IPTC or XMP fields.
var DefaultGeneratorFingerprints = []string{
	"midjourney",
	"dall-e",
	"dall·e",
	"stable diffusion",
	"stablediffusion",
	"firefly",
	"novelai",
	"comfyui",
	"automatic1111",
	"invokeai",
	"leonardo.ai",
	"imagen",
	"trainedalgorithmicmedia",
}

// generatorChunkMarkers are raw byte sequences embedded by generators that
// write their settings outside the standard metadata blocks, such as the
// PNG "parameters" text chunk.
var generatorChunkMarkers = [][]byte{
	[]byte("tEXtparameters\x00"),
	[]byte("iTXtparameters\x00"),
	[]byte("trainedAlgorithmicMedia"),
}

// metadataTags lists the tags read per metadata block.
var metadataTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Make":             true,
		"Model":            true,
		"Software":         true,
		"Artist":           true,
		"ImageDescription": true,
		"UserComment":      true,
	},
	imagemeta.IPTC: {
		"Byline": true,
		"Credit": true,
		"Source": true,
	},
	imagemeta.XMP: {
		"CreatorTool":       true,
		"DigitalSourceType": true,
		"Creator":           true,
		"Description":       true,
	},
}

func init() {
	RegisterProviderFactory("metadata", newMetadataProvider)
}

// metadataProvider inspects embedded metadata locally. It never touches
// the network: generator fingerprints give a high score, camera make and
// model a low one, and anything else no score at all.
type metadataProvider struct {
	BaseProvider
	fingerprints *KeywordMatcher
	classifier   *ErrorClassifier
}

func newMetadataProvider(config ClientConfig) (CoreSource, error) {
	fingerprints := config.Labels
	if len(fingerprints) == 0 {
		fingerprints = DefaultGeneratorFingerprints
	}
	return &metadataProvider{
		BaseProvider: newBaseProvider(config, "metadata"),
		fingerprints: NewKeywordMatcher(fingerprints),
		classifier:   &ErrorClassifier{Provider: "metadata"},
	}, nil
}

// imageFields is the subset of metadata the provider reasons about.
type imageFields struct {
	camera []string
	text   []string
}

// Score implements CoreSource.
func (p *metadataProvider) Score(ctx context.Context, img domain.Image) (float64, error) {
	if len(img.Data) == 0 {
		return 0, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return 0, p.classifier.ClassifyContextError(err)
	}

	for _, marker := range generatorChunkMarkers {
		if bytes.Contains(img.Data, marker) {
			return metadataGeneratorScore, nil
		}
	}

	fields, err := extractFields(img.Data)
	if err != nil {
		return 0, NewProviderError("metadata", ErrorTypeNoSignal, 0, "unreadable metadata", err)
	}

	for _, t := range fields.text {
		if p.fingerprints.Match(t) {
			return metadataGeneratorScore, nil
		}
	}
	if len(fields.camera) > 0 {
		return metadataCameraScore, nil
	}
	return 0, p.classifier.NoSignal("no identifying metadata")
}

// extractFields decodes EXIF, IPTC and XMP blocks from data.
func extractFields(data []byte) (fields imageFields, err error) {
	// imagemeta may panic on truncated input; treat that as unreadable.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode metadata: %v", r)
		}
	}()

	_, err = imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := metadataTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			s := strings.TrimSpace(metaString(ti.Value))
			if s == "" {
				return nil
			}
			if ti.Source == imagemeta.EXIF && (ti.Tag == "Make" || ti.Tag == "Model") {
				fields.camera = append(fields.camera, s)
				return nil
			}
			fields.text = append(fields.text, s)
			return nil
		},
	})
	if err != nil && (len(fields.camera) > 0 || len(fields.text) > 0) {
		// Partial metadata is still evidence.
		err = nil
	}
	return fields, err
}

// metaString extracts a string from a tag value. XMP values may be a
// string or a list.
func metaString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case []string:
		return strings.Join(val, " ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, e := range val {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
