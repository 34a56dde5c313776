package application

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/ahrav/imgverdict/internal/domain"
)

// ImageValidator applies the pre-invocation checks every image must pass
// before any source is called: non-empty, within the size limit and of an
// accepted type detected from its content.
type ImageValidator struct {
	maxBytes     int64
	allowedTypes []string
}

// NewImageValidator creates a validator. A maxBytes of zero or less
// disables the size check; an empty allowedTypes uses DefaultAllowedTypes.
func NewImageValidator(maxBytes int64, allowedTypes []string) *ImageValidator {
	if len(allowedTypes) == 0 {
		allowedTypes = DefaultAllowedTypes
	}
	return &ImageValidator{
		maxBytes:     maxBytes,
		allowedTypes: append([]string(nil), allowedTypes...),
	}
}

// NewImageValidatorFromConfig creates a validator from the limits section.
func NewImageValidatorFromConfig(limits LimitsConfig) *ImageValidator {
	return NewImageValidator(limits.MaxFileBytes, limits.AllowedTypes)
}

// Validate checks img and returns it with MIMEType filled in. The returned
// error is always a *domain.ImageError wrapping one of the domain
// sentinels.
func (v *ImageValidator) Validate(img domain.Image) (domain.Image, error) {
	if len(img.Data) == 0 {
		return img, domain.NewImageError(img.Name, "file is empty", domain.ErrEmptyImage)
	}

	if v.maxBytes > 0 && img.Size() > v.maxBytes {
		return img, domain.NewImageError(img.Name,
			fmt.Sprintf("file exceeds %s limit", formatBytes(v.maxBytes)),
			domain.ErrFileTooLarge)
	}

	mtype := mimetype.Detect(img.Data)
	for _, allowed := range v.allowedTypes {
		if mtype.Is(allowed) {
			img.MIMEType = allowed
			return img, nil
		}
	}

	return img, domain.NewImageError(img.Name,
		fmt.Sprintf("unsupported type %s (allowed: %s)", mtype.String(), strings.Join(v.allowedTypes, ", ")),
		domain.ErrUnsupportedType)
}

// Load reads the image at path. At most one byte beyond the size limit is
// read, which is enough for Validate to reject the file without holding
// all of an oversized upload in memory.
func (v *ImageValidator) Load(path string) (domain.Image, error) {
	cleanPath := filepath.Clean(path)
	img := domain.Image{Name: filepath.Base(cleanPath)}

	f, err := os.Open(cleanPath)
	if err != nil {
		return img, domain.NewImageError(img.Name, "cannot open file", fmt.Errorf("%w: %w", domain.ErrProcessingFailed, err))
	}
	defer f.Close()

	var r io.Reader = f
	if v.maxBytes > 0 {
		r = io.LimitReader(f, v.maxBytes+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return img, domain.NewImageError(img.Name, "cannot read file", fmt.Errorf("%w: %w", domain.ErrProcessingFailed, err))
	}
	img.Data = data
	return img, nil
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
