package application

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/corona10/goimagehash"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

var _ ports.DuplicateFinder = (*HashDuplicateFinder)(nil)

// HashDuplicateFinder groups images whose difference hashes are within a
// Hamming distance of each other. Images that fail to decode are skipped.
type HashDuplicateFinder struct {
	maxDistance int
	logger      *slog.Logger
}

// NewHashDuplicateFinder creates a finder treating hashes at most
// maxDistance bits apart as the same picture.
func NewHashDuplicateFinder(maxDistance int, logger *slog.Logger) *HashDuplicateFinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &HashDuplicateFinder{maxDistance: maxDistance, logger: logger}
}

type hashedImage struct {
	name string
	hash *goimagehash.ImageHash
}

// FindDuplicates implements ports.DuplicateFinder. Each image joins the
// first earlier group holding an image close enough to it.
func (f *HashDuplicateFinder) FindDuplicates(ctx context.Context, images []domain.Image) [][]string {
	var groups [][]hashedImage

	for _, img := range images {
		if ctx.Err() != nil {
			break
		}

		decoded, _, err := image.Decode(bytes.NewReader(img.Data))
		if err != nil {
			f.logger.Debug("skipping duplicate check", "file", img.Name, "error", err)
			continue
		}
		hash, err := goimagehash.DifferenceHash(decoded)
		if err != nil {
			f.logger.Debug("skipping duplicate check", "file", img.Name, "error", err)
			continue
		}

		entry := hashedImage{name: img.Name, hash: hash}
		if i := f.match(groups, hash); i >= 0 {
			groups[i] = append(groups[i], entry)
			continue
		}
		groups = append(groups, []hashedImage{entry})
	}

	var out [][]string
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		names := make([]string, len(g))
		for i, h := range g {
			names[i] = h.name
		}
		out = append(out, names)
	}
	return out
}

// match returns the index of the first group with a member within range of
// hash, or -1.
func (f *HashDuplicateFinder) match(groups [][]hashedImage, hash *goimagehash.ImageHash) int {
	for i, g := range groups {
		for _, member := range g {
			dist, err := hash.Distance(member.hash)
			if err == nil && dist <= f.maxDistance {
				return i
			}
		}
	}
	return -1
}
