package application

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/imgverdict/internal/domain"
)

// fakeSource is a ports.SourceClient returning canned scores per file.
type fakeSource struct {
	name     string
	scores   map[string]*float64
	fallback *float64
	panics   bool
	delay    time.Duration
	calls    atomic.Int32

	mu   sync.Mutex
	seen []string
}

func newFakeSource(name string, fallback *float64) *fakeSource {
	return &fakeSource{name: name, fallback: fallback, scores: map[string]*float64{}}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Classify(ctx context.Context, img domain.Image) *float64 {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, img.Name)
	f.mu.Unlock()

	if f.panics {
		panic("fake source exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil
		}
	}
	if s, ok := f.scores[img.Name]; ok {
		return s
	}
	return f.fallback
}

// recordingObserver counts lifecycle callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	scored   []string
	rejected []string
	finished []domain.BatchResult
}

func (o *recordingObserver) BatchStarted(ctx context.Context, runID string, _ int) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, runID)
	return ctx
}

func (o *recordingObserver) ImageScored(_ context.Context, v domain.Verdict, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scored = append(o.scored, v.File)
}

func (o *recordingObserver) ImageRejected(_ context.Context, e domain.ImageError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, e.File)
}

func (o *recordingObserver) BatchFinished(_ context.Context, r domain.BatchResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r)
}

// gradient draws a deterministic test picture; shift changes its content.
func gradient(shift int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x*8 + shift) % 256),
				G: uint8((y*8 + shift*3) % 256),
				B: uint8(((x ^ y) * 8) % 256),
				A: 255,
			})
		}
	}
	return img
}

// checkerboard draws a picture structurally unlike gradient.
func checkerboard() image.Image {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if (x/4+y/4)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func pngImage(t *testing.T, name string) domain.Image {
	t.Helper()
	return domain.Image{Name: name, Data: pngBytes(t, gradient(len(name)*17))}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
