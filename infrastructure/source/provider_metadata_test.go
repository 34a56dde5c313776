package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

func TestMetadataProvider_Score(t *testing.T) {
	pngHeader := []byte("\x89PNG\r\n\x1a\n")

	tests := []struct {
		name      string
		data      []byte
		want      float64
		wantErrIs error
	}{
		{
			name: "stable diffusion parameters chunk",
			data: append(append([]byte{}, pngHeader...), []byte("\x00\x00\x00\x20tEXtparameters\x00a castle, Steps: 20")...),
			want: metadataGeneratorScore,
		},
		{
			name: "iptc digital source type",
			data: []byte("\xff\xd8\xff\xe1<x:xmpmeta>http://cv.iptc.org/newscodes/digitalsourcetype/trainedAlgorithmicMedia</x:xmpmeta>"),
			want: metadataGeneratorScore,
		},
		{
			name:      "no metadata",
			data:      []byte("definitely not an image"),
			wantErrIs: ports.ErrNoSignal,
		},
	}

	p := newProvider(t, "metadata", ClientConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Score(context.Background(), domain.Image{Name: "x.png", Data: tt.data})
			if tt.wantErrIs != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMetadataProvider_NeedsNoAPIKey(t *testing.T) {
	p := newProvider(t, "metadata", ClientConfig{Name: "exif"})
	assert.Equal(t, "exif", p.Name())
	assert.Equal(t, "metadata", p.Provider())
}

func TestMetadataProvider_EmptyImage(t *testing.T) {
	p := newProvider(t, "metadata", ClientConfig{})
	_, err := p.Score(context.Background(), domain.Image{Name: "empty.jpg"})
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestMetaString(t *testing.T) {
	assert.Equal(t, "Adobe Firefly", metaString("Adobe Firefly"))
	assert.Equal(t, "a b", metaString([]string{"a", "b"}))
	assert.Equal(t, "a c", metaString([]any{"a", 1, "c"}))
	assert.Equal(t, "raw", metaString([]byte("raw")))
	assert.Equal(t, "", metaString(42))
}
