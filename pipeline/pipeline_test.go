package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-firesmoke/classifier"
	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeDim = 5

// dirExtractor scores an image by the class directory it sits in, so the
// classifier can learn the tree without a real network.
type dirExtractor struct {
	calls int
}

func (e *dirExtractor) Extract(_ context.Context, path string) ([]float32, error) {
	e.calls++
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	vec := make([]float32, fakeDim)
	for i := range vec {
		vec[i] = float32(len(filepath.Base(path))%3+i) * 0.05
	}
	if l, err := dataset.ParseLabel(filepath.Base(filepath.Dir(path))); err == nil {
		vec[int(l)] += 3
	}
	return vec, nil
}

func (e *dirExtractor) ExtractImage(_ context.Context, img image.Image) ([]float32, error) {
	vec := make([]float32, fakeDim)
	vec[dataset.Smoke] = float32(img.Bounds().Dx())
	return vec, nil
}

func (e *dirExtractor) Dim() int     { return fakeDim }
func (e *dirExtractor) Close() error { return nil }

func writeSplit(t *testing.T, root, split string, perClass int) {
	t.Helper()
	for _, l := range dataset.Labels {
		dir := filepath.Join(root, split, l.String())
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for i := 0; i < perClass; i++ {
			name := filepath.Join(dir, fmt.Sprintf("image_%d.jpg", i))
			require.NoError(t, os.WriteFile(name, []byte{0xff, 0xd8}, 0o644))
		}
	}
}

func trainerConfig(root string) TrainerConfig {
	return TrainerConfig{
		Root:           root,
		TrainDir:       "Train",
		TestDir:        "Test",
		TestSize:       0.2,
		Seed:           42,
		Classifier:     classifier.DefaultOptions(),
		OutputPath:     filepath.Join(root, "out", "fire_smoke_model.json"),
		ExtractorModel: "fake",
	}
}

func TestTrainerRun(t *testing.T) {
	root := t.TempDir()
	writeSplit(t, root, "Train", 10)
	writeSplit(t, root, "Test", 2)

	ext := &dirExtractor{}
	report, model, err := NewTrainer(trainerConfig(root), ext).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30, report.Samples)
	assert.Equal(t, map[string]int{"Fire": 10, "Smoke": 10, "Neutral": 10}, report.Counts)
	assert.Equal(t, 24, report.TrainSize)
	assert.Equal(t, 6, report.TestSize)
	assert.Equal(t, fakeDim, report.FeatureDim)
	assert.GreaterOrEqual(t, report.Accuracy, 0.0)
	assert.LessOrEqual(t, report.Accuracy, 1.0)
	assert.Equal(t, 1.0, report.Accuracy)
	assert.Equal(t, 6, report.Confusion.Total())
	assert.NotEmpty(t, report.RunID)
	assert.FileExists(t, report.ModelPath)

	require.Len(t, report.SamplePredictions, 3)
	assert.Equal(t, "Fire", report.SamplePredictions[0].Class)
	assert.Equal(t, "Neutral", report.SamplePredictions[1].Class)
	assert.Equal(t, "Smoke", report.SamplePredictions[2].Class)
	assert.True(t, model.Fitted())
	assert.Greater(t, report.PeakHeapBytes, uint64(0))
	assert.GreaterOrEqual(t, report.Durations.Total, report.Durations.Extract)
}

func TestTrainerDeterministicSplit(t *testing.T) {
	root := t.TempDir()
	writeSplit(t, root, "Train", 7)

	cfg := trainerConfig(root)
	cfg.OutputPath = ""
	a, _, err := NewTrainer(cfg, &dirExtractor{}).Run(context.Background())
	require.NoError(t, err)
	b, _, err := NewTrainer(cfg, &dirExtractor{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.TrainSize, b.TrainSize)
	assert.Equal(t, a.Confusion, b.Confusion)
	assert.Empty(t, a.SamplePredictions, "no Test tree, no sample predictions")
}

func TestTrainerMissingClass(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Train", "Fire"), 0o755))

	_, _, err := NewTrainer(trainerConfig(root), &dirExtractor{}).Run(context.Background())
	assert.Error(t, err)
}

func TestPredictorRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeSplit(t, root, "Train", 10)
	writeSplit(t, root, "Test", 3)

	ext := &dirExtractor{}
	report, _, err := NewTrainer(trainerConfig(root), ext).Run(context.Background())
	require.NoError(t, err)

	model, meta, err := classifier.Load(report.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, meta.RunID)
	assert.Equal(t, "fake", meta.ExtractorModel)

	p, err := NewPredictor(ext, model)
	require.NoError(t, err)

	allowed := []string{"Fire", "Smoke", "Neutral"}
	for _, l := range dataset.Labels {
		path := filepath.Join(root, "Test", l.String(), "image_1.jpg")
		name, err := p.PredictFireSmoke(context.Background(), path)
		require.NoError(t, err)
		assert.Contains(t, allowed, name)
		assert.Equal(t, l.String(), name)
	}

	pred, err := p.Predict(context.Background(), filepath.Join(root, "Test", "Smoke", "image_0.jpg"))
	require.NoError(t, err)
	assert.Equal(t, dataset.Smoke, pred.Label)
	assert.Len(t, pred.Probabilities, dataset.NumClasses)
	assert.Greater(t, pred.Probabilities["Smoke"], pred.Probabilities["Fire"])

	_, err = p.PredictFireSmoke(context.Background(), filepath.Join(root, "missing.jpg"))
	assert.Error(t, err)

	imgPred, err := p.PredictImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Contains(t, allowed, imgPred.Class)
}

func TestEvaluate(t *testing.T) {
	root := t.TempDir()
	writeSplit(t, root, "Train", 10)
	writeSplit(t, root, "Test", 4)

	ext := &dirExtractor{}
	cfg := trainerConfig(root)
	cfg.OutputPath = ""
	_, model, err := NewTrainer(cfg, ext).Run(context.Background())
	require.NoError(t, err)

	eval, err := Evaluate(context.Background(), ext, model, root, "Test")
	require.NoError(t, err)
	assert.Equal(t, 12, eval.Samples)
	assert.Equal(t, 1.0, eval.Accuracy)
	assert.Equal(t, 4, eval.Classification.Classes["Fire"].Support)
}

func TestNewPredictorChecks(t *testing.T) {
	m, err := classifier.New(classifier.DefaultOptions())
	require.NoError(t, err)
	_, err = NewPredictor(&dirExtractor{}, m)
	assert.ErrorIs(t, err, classifier.ErrNotFitted)

	X := [][]float32{{1, 0}, {0, 1}, {1, 1}, {0, 0}}
	y := []dataset.Label{dataset.Fire, dataset.Smoke, dataset.Neutral, dataset.Neutral}
	require.NoError(t, m.Fit(X, y))
	_, err = NewPredictor(&dirExtractor{}, m)
	assert.ErrorIs(t, err, classifier.ErrDimensionMismatch)
}

func TestSamplePaths(t *testing.T) {
	paths := SamplePaths("/data", "Test")
	assert.Equal(t, []string{
		filepath.Join("/data", "Test", "Fire", "image_0.jpg"),
		filepath.Join("/data", "Test", "Neutral", "image_0.jpg"),
		filepath.Join("/data", "Test", "Smoke", "image_0.jpg"),
	}, paths)
}
