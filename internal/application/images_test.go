package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/imgverdict/internal/domain"
)

func TestImageValidator_Validate(t *testing.T) {
	png := pngBytes(t, gradient(0))
	jpg := jpegBytes(t, gradient(0))
	gif := []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

	tests := []struct {
		name     string
		img      domain.Image
		maxBytes int64
		allowed  []string
		wantErr  error
		wantMIME string
	}{
		{name: "png", img: domain.Image{Name: "a.png", Data: png}, wantMIME: "image/png"},
		{name: "jpeg", img: domain.Image{Name: "a.jpg", Data: jpg}, wantMIME: "image/jpeg"},
		{name: "content wins over extension", img: domain.Image{Name: "photo.png", Data: jpg}, wantMIME: "image/jpeg"},
		{name: "empty", img: domain.Image{Name: "a.png"}, wantErr: domain.ErrEmptyImage},
		{name: "gif rejected", img: domain.Image{Name: "a.gif", Data: gif}, wantErr: domain.ErrUnsupportedType},
		{name: "png not allowed", img: domain.Image{Name: "a.png", Data: png}, allowed: []string{"image/jpeg"}, wantErr: domain.ErrUnsupportedType},
		{name: "too large", img: domain.Image{Name: "a.png", Data: png}, maxBytes: int64(len(png) - 1), wantErr: domain.ErrFileTooLarge},
		{name: "exactly at limit", img: domain.Image{Name: "a.png", Data: png}, maxBytes: int64(len(png)), wantMIME: "image/png"},
		{name: "size checked before type", img: domain.Image{Name: "a.gif", Data: gif}, maxBytes: 4, wantErr: domain.ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxBytes := tt.maxBytes
			if maxBytes == 0 {
				maxBytes = DefaultMaxFileBytes
			}
			v := NewImageValidator(maxBytes, tt.allowed)

			got, err := v.Validate(tt.img)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				var imgErr *domain.ImageError
				require.ErrorAs(t, err, &imgErr)
				assert.Equal(t, tt.img.Name, imgErr.File)
				assert.NotEmpty(t, imgErr.Reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, got.MIMEType)
		})
	}
}

func TestImageValidator_TooLargeReason(t *testing.T) {
	v := NewImageValidator(5<<20, nil)
	_, err := v.Validate(domain.Image{Name: "big.png", Data: make([]byte, 5<<20+1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5.0 MiB")
}

func TestImageValidator_Load(t *testing.T) {
	dir := t.TempDir()
	data := pngBytes(t, gradient(4))
	path := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Run("reads whole file within limit", func(t *testing.T) {
		img, err := NewImageValidator(DefaultMaxFileBytes, nil).Load(path)
		require.NoError(t, err)
		assert.Equal(t, "pic.png", img.Name)
		assert.Equal(t, data, img.Data)
	})

	t.Run("stops one byte past the limit", func(t *testing.T) {
		v := NewImageValidator(10, nil)
		img, err := v.Load(path)
		require.NoError(t, err)
		assert.Len(t, img.Data, 11)

		_, err = v.Validate(img)
		assert.ErrorIs(t, err, domain.ErrFileTooLarge)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewImageValidator(0, nil).Load(filepath.Join(dir, "nope.png"))
		assert.ErrorIs(t, err, domain.ErrProcessingFailed)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KiB", formatBytes(1024))
	assert.Equal(t, "5.0 MiB", formatBytes(5<<20))
	assert.Equal(t, "1.5 GiB", formatBytes(3<<29))
}

func TestImageValidator_UnsupportedTypeReason(t *testing.T) {
	gif := []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

	tests := []struct {
		name       string
		validator  *ImageValidator
		wantReason string
	}{
		{
			name:       "default types",
			validator:  NewImageValidator(0, nil),
			wantReason: "unsupported type image/gif (allowed: image/jpeg, image/png)",
		},
		{
			name:       "configured types",
			validator:  NewImageValidatorFromConfig(LimitsConfig{AllowedTypes: []string{"image/png"}}),
			wantReason: "unsupported type image/gif (allowed: image/png)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.validator.Validate(domain.Image{Name: "a.gif", Data: gif})
			var imgErr *domain.ImageError
			require.ErrorAs(t, err, &imgErr)
			assert.Equal(t, tt.wantReason, imgErr.Reason)
		})
	}
}
