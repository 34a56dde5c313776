// Package domain contains pure, dependency-free models for scoring images
// and combining per-source scores into verdicts.
package domain

// Image is a single user-submitted image handed to the scoring sources.
// Data is never modified after the image enters a batch, so the same
// Image value is shared by every concurrent source call.
type Image struct {
	// Name identifies the image in verdicts, logs and exports (usually the
	// base file name).
	Name string `json:"name"`

	// Data holds the raw encoded bytes.
	Data []byte `json:"-"`

	// MIMEType is the sniffed content type, filled during validation.
	MIMEType string `json:"mime_type,omitempty"`
}

// Size returns the encoded size of the image in bytes.
func (i Image) Size() int64 { return int64(len(i.Data)) }
