package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/go-firesmoke/classifier"
	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/nvr-ai/go-firesmoke/inference"
	"github.com/nvr-ai/go-firesmoke/profiler"
	"github.com/pkg/errors"
)

// SampleImageName is the file predicted from each Test class directory after
// training.
const SampleImageName = "image_0.jpg"

// sampleOrder is the order in which sample predictions are run.
var sampleOrder = []dataset.Label{dataset.Fire, dataset.Neutral, dataset.Smoke}

// TrainerConfig configures a training run.
type TrainerConfig struct {
	// Root contains the TrainDir and TestDir trees.
	Root     string
	TrainDir string
	TestDir  string
	// TestSize is the held-out fraction of the training tree.
	TestSize float64
	// Seed makes the split reproducible.
	Seed int64
	// Classifier holds the solver options.
	Classifier classifier.Options
	// OutputPath is where the fitted classifier is saved. Empty skips saving.
	OutputPath string
	// ExtractorModel is recorded in the artifact metadata.
	ExtractorModel string
	// ReportInterval is how often runtime status is logged during the run.
	// Zero disables the periodic report.
	ReportInterval time.Duration
}

// Durations records how long each stage took.
type Durations struct {
	Enumerate time.Duration `json:"enumerate"`
	Extract   time.Duration `json:"extract"`
	Fit       time.Duration `json:"fit"`
	Evaluate  time.Duration `json:"evaluate"`
	Save      time.Duration `json:"save"`
	Samples   time.Duration `json:"samples"`
	Total     time.Duration `json:"total"`
}

// Report summarises a training run.
type Report struct {
	RunID             string                     `json:"run_id"`
	Timestamp         time.Time                  `json:"timestamp"`
	Counts            map[string]int             `json:"counts"`
	Samples           int                        `json:"samples"`
	TrainSize         int                        `json:"train_size"`
	TestSize          int                        `json:"test_size"`
	FeatureDim        int                        `json:"feature_dim"`
	Accuracy          float64                    `json:"accuracy"`
	Confusion         classifier.ConfusionMatrix `json:"confusion"`
	Classification    classifier.Report          `json:"classification"`
	Fit               classifier.FitResult       `json:"fit"`
	Extraction        inference.TimingStats      `json:"extraction"`
	Durations         Durations                  `json:"durations"`
	Memory            profiler.MemoryStats       `json:"memory"`
	PeakHeapBytes     uint64                     `json:"peak_heap_bytes"`
	ModelPath         string                     `json:"model_path,omitempty"`
	SamplePredictions []Prediction               `json:"sample_predictions,omitempty"`
}

// Trainer runs the end-to-end training pipeline.
type Trainer struct {
	cfg       TrainerConfig
	extractor inference.FeatureExtractor
}

// NewTrainer creates a trainer. The extractor stays owned by the caller.
func NewTrainer(cfg TrainerConfig, ext inference.FeatureExtractor) *Trainer {
	return &Trainer{cfg: cfg, extractor: ext}
}

// Run enumerates the training tree, extracts features, splits them, fits the
// classifier, scores it on the held-out split, saves it and predicts the
// sample test images.
//
// Arguments:
//   - ctx: Cancels extraction between images.
//
// Returns:
//   - *Report: The run summary.
//   - *classifier.LogisticRegression: The fitted classifier.
//   - error: The first failure.
func (t *Trainer) Run(ctx context.Context) (*Report, *classifier.LogisticRegression, error) {
	prof := profiler.New(profiler.Options{ReportInterval: t.cfg.ReportInterval})
	prof.Start()
	defer prof.Stop()

	total := prof.StartStage("total")
	meta := classifier.NewMetadata()
	meta.ExtractorModel = t.cfg.ExtractorModel
	report := &Report{RunID: meta.RunID, Timestamp: meta.CreatedAt}

	done := prof.StartStage("enumerate")
	samples, err := dataset.Enumerate(t.cfg.Root, t.cfg.TrainDir)
	if err != nil {
		return nil, nil, err
	}
	report.Durations.Enumerate = done()
	report.Samples = len(samples)
	report.Counts = countsByName(samples)
	prof.RecordMetric("images", float64(len(samples)))
	slog.Info("dataset enumerated",
		"root", filepath.Join(t.cfg.Root, t.cfg.TrainDir),
		"images", len(samples),
		"counts", report.Counts,
	)

	train, test, err := dataset.Split(len(samples), t.cfg.TestSize, t.cfg.Seed)
	if err != nil {
		return nil, nil, err
	}

	done = prof.StartStage("extract")
	features, timing, err := inference.ExtractAll(ctx, t.extractor, samples)
	if err != nil {
		return nil, nil, err
	}
	report.Durations.Extract = done()
	report.Extraction = timing
	report.FeatureDim = t.extractor.Dim()

	labels := dataset.LabelsOf(samples)
	xTrain, yTrain := dataset.Take(features, train), dataset.Take(labels, train)
	xTest, yTest := dataset.Take(features, test), dataset.Take(labels, test)
	report.TrainSize, report.TestSize = len(train), len(test)
	slog.Info("dataset split", "train", len(train), "test", len(test), "seed", t.cfg.Seed)

	model, err := classifier.New(t.cfg.Classifier)
	if err != nil {
		return nil, nil, err
	}
	done = prof.StartStage("fit")
	if err := model.Fit(xTrain, yTrain); err != nil {
		return nil, nil, err
	}
	report.Durations.Fit = done()
	report.Fit = model.Result()

	done = prof.StartStage("evaluate")
	eval, err := score(model, xTest, yTest)
	if err != nil {
		return nil, nil, err
	}
	report.Durations.Evaluate = done()
	report.Accuracy = eval.Accuracy
	report.Confusion = eval.Confusion
	report.Classification = eval.Classification
	prof.RecordMetric("accuracy", eval.Accuracy)
	slog.Info("model accuracy", "accuracy", eval.Accuracy, "test", len(test))

	if t.cfg.OutputPath != "" {
		done = prof.StartStage("save")
		meta.Accuracy = eval.Accuracy
		meta.TrainSamples = len(train)
		meta.TestSamples = len(test)
		if err := classifier.Save(t.cfg.OutputPath, model, meta); err != nil {
			return nil, nil, err
		}
		report.Durations.Save = done()
		report.ModelPath = t.cfg.OutputPath
		slog.Info("classifier saved", "path", t.cfg.OutputPath, "run_id", meta.RunID)
	}

	done = prof.StartStage("samples")
	predictor, err := NewPredictor(t.extractor, model)
	if err != nil {
		return nil, nil, err
	}
	report.SamplePredictions, err = PredictSamples(ctx, predictor, t.cfg.Root, t.cfg.TestDir)
	if err != nil {
		return nil, nil, err
	}
	report.Durations.Samples = done()
	report.Durations.Total = total()

	snap := prof.Snapshot()
	report.Memory = snap.Memory
	report.PeakHeapBytes = snap.PeakHeap
	slog.Debug("training stages", "stages", snap.Stages, "peak_heap", profiler.FormatBytes(snap.PeakHeap))

	return report, model, nil
}

// SamplePaths returns <root>/<split>/<class>/image_0.jpg for each class in
// the order the samples are predicted.
func SamplePaths(root, split string) []string {
	out := make([]string, len(sampleOrder))
	for i, l := range sampleOrder {
		out[i] = filepath.Join(root, split, l.String(), SampleImageName)
	}
	return out
}

// PredictSamples predicts each sample image that exists. Missing files are
// skipped; extraction failures are returned.
func PredictSamples(ctx context.Context, p *Predictor, root, split string) ([]Prediction, error) {
	var out []Prediction
	for _, path := range SamplePaths(root, split) {
		if _, err := os.Stat(path); err != nil {
			slog.Debug("sample image not found", "path", path)
			continue
		}
		pred, err := p.Predict(ctx, path)
		if err != nil {
			return nil, errors.Wrap(err, "sample prediction")
		}
		slog.Info("sample prediction", "path", path, "class", pred.Class)
		out = append(out, *pred)
	}
	return out, nil
}

func countsByName(samples []dataset.Sample) map[string]int {
	out := make(map[string]int, dataset.NumClasses)
	for l, n := range dataset.Counts(samples) {
		out[l.String()] = n
	}
	return out
}
