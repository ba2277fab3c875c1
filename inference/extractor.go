package inference

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/pkg/errors"
)

// FeatureExtractor turns an image into a fixed-length feature vector.
type FeatureExtractor interface {
	// Extract loads the image at path and returns its features.
	Extract(ctx context.Context, path string) ([]float32, error)
	// ExtractImage returns the features of an in-memory image.
	ExtractImage(ctx context.Context, img image.Image) ([]float32, error)
	// Dim is the length of every vector the extractor returns.
	Dim() int
	// Close releases the extractor.
	Close() error
}

// progressEvery controls how often ExtractAll logs at info level.
const progressEvery = 100

// ValidateVector checks that vec has length dim and holds only finite values.
//
// Arguments:
//   - vec: The feature vector.
//   - dim: Expected length.
//
// Returns:
//   - error: Describing the first violation, or nil.
func ValidateVector(vec []float32, dim int) error {
	if len(vec) != dim {
		return errors.Errorf("feature vector has length %d, expected %d", len(vec), dim)
	}
	for i, v := range vec {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return errors.Errorf("feature vector has non-finite value %v at index %d", v, i)
		}
	}
	return nil
}

// Norm returns the L2 norm of vec.
func Norm(vec []float32) float32 {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	return math32.Sqrt(sum)
}

// TimingStats accumulates per-image extraction durations.
type TimingStats struct {
	Count int
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Add records one duration.
func (s *TimingStats) Add(d time.Duration) {
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	s.Total += d
}

// Mean returns the average duration, or zero when nothing was recorded.
func (s TimingStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// ExtractAll extracts features for every sample, in order. Extraction stops
// at the first error or when ctx is cancelled.
//
// Arguments:
//   - ctx: Checked before every image.
//   - ext: The feature extractor.
//   - samples: The images to process.
//
// Returns:
//   - [][]float32: One vector per sample, aligned with samples.
//   - TimingStats: Per-image extraction timings.
//   - error: The first extraction or validation failure.
func ExtractAll(ctx context.Context, ext FeatureExtractor, samples []dataset.Sample) ([][]float32, TimingStats, error) {
	var stats TimingStats
	features := make([][]float32, 0, len(samples))
	dim := ext.Dim()

	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		start := time.Now()
		vec, err := ext.Extract(ctx, s.Path)
		if err != nil {
			return nil, stats, err
		}
		elapsed := time.Since(start)
		stats.Add(elapsed)

		if err := ValidateVector(vec, dim); err != nil {
			return nil, stats, errors.Wrap(err, s.Path)
		}
		features = append(features, vec)

		slog.Debug("extracted features",
			"path", s.Path,
			"label", s.Label,
			"norm", Norm(vec),
			"duration", elapsed,
		)
		if (i+1)%progressEvery == 0 {
			slog.Info("extraction progress", "done", i+1, "total", len(samples), "mean", stats.Mean())
		}
	}

	slog.Info("extraction complete",
		"images", stats.Count,
		"total", stats.Total,
		"min", stats.Min,
		"mean", stats.Mean(),
		"max", stats.Max,
	)
	return features, stats, nil
}
