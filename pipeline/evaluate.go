package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nvr-ai/go-firesmoke/classifier"
	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/nvr-ai/go-firesmoke/inference"
)

// Evaluation is the score of a classifier on a labelled tree.
type Evaluation struct {
	Samples        int                        `json:"samples"`
	Accuracy       float64                    `json:"accuracy"`
	Confusion      classifier.ConfusionMatrix `json:"confusion"`
	Classification classifier.Report          `json:"classification"`
	Extraction     inference.TimingStats      `json:"extraction"`
	Duration       time.Duration              `json:"duration"`
}

// Evaluate scores a fitted classifier on every image under
// <root>/<split>/{Fire,Smoke,Neutral}.
//
// Arguments:
//   - ctx: Cancels extraction between images.
//   - ext: The feature extractor the classifier was trained with.
//   - model: The fitted classifier.
//   - root: Dataset root.
//   - split: Directory under root, usually "Test".
//
// Returns:
//   - *Evaluation: Accuracy, confusion matrix and per-class report.
//   - error: The first failure.
func Evaluate(ctx context.Context, ext inference.FeatureExtractor, model *classifier.LogisticRegression, root, split string) (*Evaluation, error) {
	start := time.Now()
	if _, err := NewPredictor(ext, model); err != nil {
		return nil, err
	}

	samples, err := dataset.Enumerate(root, split)
	if err != nil {
		return nil, err
	}
	features, timing, err := inference.ExtractAll(ctx, ext, samples)
	if err != nil {
		return nil, err
	}

	eval, err := score(model, features, dataset.LabelsOf(samples))
	if err != nil {
		return nil, err
	}
	eval.Samples = len(samples)
	eval.Extraction = timing
	eval.Duration = time.Since(start)

	slog.Info("evaluation complete",
		"split", split,
		"images", eval.Samples,
		"accuracy", eval.Accuracy,
		"duration", eval.Duration,
	)
	return eval, nil
}

// score predicts X and compares against y.
func score(model *classifier.LogisticRegression, X [][]float32, y []dataset.Label) (*Evaluation, error) {
	pred, err := model.PredictBatch(X)
	if err != nil {
		return nil, err
	}
	acc, err := classifier.Accuracy(y, pred)
	if err != nil {
		return nil, err
	}
	cm, err := classifier.NewConfusionMatrix(y, pred)
	if err != nil {
		return nil, err
	}
	return &Evaluation{
		Samples:        len(y),
		Accuracy:       acc,
		Confusion:      cm,
		Classification: classifier.ClassificationReport(cm),
	}, nil
}
