// Package pipeline - Training, evaluation and prediction over a labelled
// fire/smoke image tree.
package pipeline

import (
	"context"
	"image"

	"github.com/nvr-ai/go-firesmoke/classifier"
	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/nvr-ai/go-firesmoke/inference"
	"github.com/pkg/errors"
)

// Prediction is the classification of one image.
type Prediction struct {
	Path          string             `json:"path,omitempty"`
	Label         dataset.Label      `json:"label"`
	Class         string             `json:"class"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Predictor classifies images with a feature extractor and a fitted
// classifier.
type Predictor struct {
	extractor inference.FeatureExtractor
	model     *classifier.LogisticRegression
}

// NewPredictor pairs an extractor with a fitted classifier.
//
// Arguments:
//   - ext: The feature extractor.
//   - model: A fitted classifier whose dimension matches ext.
//
// Returns:
//   - *Predictor: The predictor.
//   - error: If the classifier is unfitted or the dimensions differ.
func NewPredictor(ext inference.FeatureExtractor, model *classifier.LogisticRegression) (*Predictor, error) {
	if !model.Fitted() {
		return nil, classifier.ErrNotFitted
	}
	if ext.Dim() != model.Dim() {
		return nil, errors.Wrapf(classifier.ErrDimensionMismatch,
			"extractor produces %d features, classifier expects %d", ext.Dim(), model.Dim())
	}
	return &Predictor{extractor: ext, model: model}, nil
}

// PredictFireSmoke returns "Fire", "Smoke" or "Neutral" for the image at path.
func (p *Predictor) PredictFireSmoke(ctx context.Context, path string) (string, error) {
	pred, err := p.Predict(ctx, path)
	if err != nil {
		return "", err
	}
	return pred.Class, nil
}

// Predict classifies the image at path and reports the class probabilities.
func (p *Predictor) Predict(ctx context.Context, path string) (*Prediction, error) {
	vec, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	pred, err := p.classify(vec)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	pred.Path = path
	return pred, nil
}

// PredictImage classifies an in-memory image.
func (p *Predictor) PredictImage(ctx context.Context, img image.Image) (*Prediction, error) {
	vec, err := p.extractor.ExtractImage(ctx, img)
	if err != nil {
		return nil, err
	}
	return p.classify(vec)
}

func (p *Predictor) classify(vec []float32) (*Prediction, error) {
	if err := inference.ValidateVector(vec, p.model.Dim()); err != nil {
		return nil, err
	}
	proba, err := p.model.PredictProba(vec)
	if err != nil {
		return nil, err
	}
	label, err := p.model.Predict(vec)
	if err != nil {
		return nil, err
	}

	out := &Prediction{
		Label:         label,
		Class:         label.String(),
		Probabilities: make(map[string]float64, len(proba)),
	}
	for i, v := range proba {
		out.Probabilities[dataset.Label(i).String()] = v
	}
	return out, nil
}
