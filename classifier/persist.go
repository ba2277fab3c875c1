package classifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/pkg/errors"
)

// FormatVersion identifies the artifact layout written by Save.
const FormatVersion = 1

// Metadata describes how an artifact was produced.
type Metadata struct {
	RunID          string    `json:"run_id"`
	CreatedAt      time.Time `json:"created_at"`
	FeatureDim     int       `json:"feature_dim"`
	Classes        []string  `json:"classes"`
	ExtractorModel string    `json:"extractor_model,omitempty"`
	Solver         Solver    `json:"solver"`
	Accuracy       float64   `json:"accuracy"`
	TrainSamples   int       `json:"train_samples,omitempty"`
	TestSamples    int       `json:"test_samples,omitempty"`
}

// NewMetadata fills in a fresh run ID, the creation time and the class names.
func NewMetadata() Metadata {
	return Metadata{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Classes:   dataset.Names(),
	}
}

type artifact struct {
	Version   int         `json:"version"`
	Metadata  Metadata    `json:"metadata"`
	Options   Options     `json:"options"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
	Result    FitResult   `json:"fit"`
}

// Save writes a fitted classifier and its metadata to path as JSON. The
// file is written to a temporary sibling and renamed into place.
//
// Arguments:
//   - path: Destination file. Parent directories are created.
//   - m: The fitted classifier.
//   - meta: Run metadata. Missing run ID, time, dimension, classes and solver are filled in.
//
// Returns:
//   - error: If the classifier is unfitted or the file cannot be written.
func Save(path string, m *LogisticRegression, meta Metadata) error {
	if !m.Fitted() {
		return ErrNotFitted
	}
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if len(meta.Classes) == 0 {
		meta.Classes = dataset.Names()
	}
	meta.FeatureDim = m.Dim()
	meta.Solver = m.opts.Solver

	data, err := json.MarshalIndent(artifact{
		Version:   FormatVersion,
		Metadata:  meta,
		Options:   m.opts,
		Coef:      m.coef,
		Intercept: m.intercept,
		Result:    m.result,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode classifier")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "rename %s", tmp)
	}
	return nil
}

// Load reads a classifier written by Save.
//
// Arguments:
//   - path: The artifact file.
//
// Returns:
//   - *LogisticRegression: The restored classifier.
//   - Metadata: The stored metadata.
//   - error: If the file is missing, malformed or inconsistent.
func Load(path string) (*LogisticRegression, Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Metadata{}, errors.Wrapf(err, "read %s", path)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, Metadata{}, errors.Wrapf(err, "decode %s", path)
	}
	if a.Version != FormatVersion {
		return nil, Metadata{}, errors.Errorf("%s: unsupported artifact version %d", path, a.Version)
	}
	if len(a.Coef) != dataset.NumClasses || len(a.Intercept) != dataset.NumClasses {
		return nil, Metadata{}, errors.Errorf("%s: expected %d classes, found %d weight rows and %d intercepts",
			path, dataset.NumClasses, len(a.Coef), len(a.Intercept))
	}
	d := len(a.Coef[0])
	for k, row := range a.Coef {
		if len(row) != d || d == 0 {
			return nil, Metadata{}, errors.Wrapf(ErrDimensionMismatch, "%s: weight row %d has %d values", path, k, len(row))
		}
	}
	if a.Metadata.FeatureDim != 0 && a.Metadata.FeatureDim != d {
		return nil, Metadata{}, errors.Wrapf(ErrDimensionMismatch, "%s: metadata says %d features, weights have %d",
			path, a.Metadata.FeatureDim, d)
	}

	m, err := New(a.Options)
	if err != nil {
		return nil, Metadata{}, errors.Wrapf(err, "%s: stored options", path)
	}
	m.coef = a.Coef
	m.intercept = a.Intercept
	m.result = a.Result
	return m, a.Metadata, nil
}
