// Package classifier - Multinomial logistic regression over feature vectors.
package classifier

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNotFitted is returned when predicting with an unfitted classifier.
	ErrNotFitted = errors.New("classifier is not fitted")
	// ErrDimensionMismatch is returned when inputs disagree in length.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Solver selects the optimisation method used by Fit.
type Solver string

const (
	// SolverLBFGS minimises the full objective with limited-memory BFGS.
	SolverLBFGS Solver = "lbfgs"
	// SolverAdam runs full-batch Adam on a gorgonia graph.
	SolverAdam Solver = "adam"
)

// ParseSolver converts a case-insensitive solver name. Empty selects L-BFGS.
func ParseSolver(s string) (Solver, error) {
	switch Solver(strings.ToLower(strings.TrimSpace(s))) {
	case "", SolverLBFGS:
		return SolverLBFGS, nil
	case SolverAdam:
		return SolverAdam, nil
	default:
		return "", errors.Errorf("unknown solver %q", s)
	}
}

// Options configures a LogisticRegression.
type Options struct {
	// C is the inverse L2 regularisation strength. Smaller is stronger.
	C float64 `json:"c"`
	// MaxIter bounds the solver iterations.
	MaxIter int `json:"max_iter"`
	// Tol is the convergence tolerance.
	Tol float64 `json:"tol"`
	// Solver is lbfgs or adam.
	Solver Solver `json:"solver"`
	// LearnRate is the Adam step size.
	LearnRate float64 `json:"learn_rate"`
}

// DefaultOptions mirrors the classic defaults: C=1, 100 iterations, L-BFGS.
func DefaultOptions() Options {
	return Options{
		C:         1.0,
		MaxIter:   100,
		Tol:       1e-4,
		Solver:    SolverLBFGS,
		LearnRate: 1e-3,
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.C <= 0 {
		return errors.Errorf("C must be positive, got %v", o.C)
	}
	if o.MaxIter <= 0 {
		return errors.Errorf("max_iter must be positive, got %d", o.MaxIter)
	}
	if o.Tol < 0 {
		return errors.Errorf("tol must not be negative, got %v", o.Tol)
	}
	if _, err := ParseSolver(string(o.Solver)); err != nil {
		return err
	}
	if o.Solver == SolverAdam && o.LearnRate <= 0 {
		return errors.Errorf("learn_rate must be positive, got %v", o.LearnRate)
	}
	return nil
}

// FitResult describes how a fit ended.
type FitResult struct {
	Iterations int           `json:"iterations"`
	Loss       float64       `json:"loss"`
	Converged  bool          `json:"converged"`
	Duration   time.Duration `json:"duration"`
}

// LogisticRegression is a softmax classifier with one weight row and one
// intercept per class. Class k scores x as Coef[k]·x + Intercept[k].
type LogisticRegression struct {
	opts      Options
	coef      [][]float64
	intercept []float64
	result    FitResult
}

// New creates an unfitted classifier.
//
// Arguments:
//   - opts: Solver options.
//
// Returns:
//   - *LogisticRegression: The classifier.
//   - error: If the options are invalid.
func New(opts Options) (*LogisticRegression, error) {
	if opts.Solver == "" {
		opts.Solver = SolverLBFGS
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &LogisticRegression{opts: opts}, nil
}

// Options returns the configured options.
func (m *LogisticRegression) Options() Options {
	return m.opts
}

// Fitted reports whether the classifier has parameters.
func (m *LogisticRegression) Fitted() bool {
	return len(m.coef) == dataset.NumClasses
}

// Dim returns the feature length the classifier was fitted on, or 0.
func (m *LogisticRegression) Dim() int {
	if !m.Fitted() {
		return 0
	}
	return len(m.coef[0])
}

// Result returns the outcome of the last Fit.
func (m *LogisticRegression) Result() FitResult {
	return m.result
}

// Coef returns a copy of the class weight rows.
func (m *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(m.coef))
	for k, row := range m.coef {
		out[k] = append([]float64(nil), row...)
	}
	return out
}

// Intercept returns a copy of the class intercepts.
func (m *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), m.intercept...)
}

// Fit learns the weights from X and y, replacing any previous fit. The
// objective is the summed cross-entropy plus ||W||²/(2C); intercepts are not
// penalised. Reaching MaxIter without converging is logged, not an error.
//
// Arguments:
//   - X: Feature vectors, all of the same length.
//   - y: Labels aligned with X.
//
// Returns:
//   - error: If the inputs are empty or inconsistent, or the solver fails.
func (m *LogisticRegression) Fit(X [][]float32, y []dataset.Label) error {
	d, err := checkTrainingSet(X, y)
	if err != nil {
		return err
	}

	start := time.Now()
	var (
		coef      [][]float64
		intercept []float64
		result    FitResult
	)
	switch m.opts.Solver {
	case SolverAdam:
		coef, intercept, result, err = fitAdam(X, y, d, m.opts)
	default:
		coef, intercept, result, err = fitLBFGS(X, y, d, m.opts)
	}
	if err != nil {
		return err
	}
	if !finite(result.Loss) || !finite(intercept...) {
		return errors.Errorf("%s solver diverged (loss %v)", m.opts.Solver, result.Loss)
	}
	for _, row := range coef {
		if !finite(row...) {
			return errors.Errorf("%s solver diverged (loss %v)", m.opts.Solver, result.Loss)
		}
	}
	result.Duration = time.Since(start)

	if !result.Converged {
		slog.Warn("solver did not converge; increase max_iter or scale the features",
			"solver", m.opts.Solver,
			"iterations", result.Iterations,
			"loss", result.Loss,
		)
	}
	slog.Info("classifier fitted",
		"solver", m.opts.Solver,
		"samples", len(X),
		"features", d,
		"iterations", result.Iterations,
		"loss", result.Loss,
		"duration", result.Duration,
	)

	m.coef = coef
	m.intercept = intercept
	m.result = result
	return nil
}

// DecisionFunction returns the per-class scores of x.
func (m *LogisticRegression) DecisionFunction(x []float32) ([]float64, error) {
	if !m.Fitted() {
		return nil, ErrNotFitted
	}
	if len(x) != m.Dim() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "got %d features, expected %d", len(x), m.Dim())
	}
	scores := make([]float64, dataset.NumClasses)
	logits(m.coef, m.intercept, x, scores)
	return scores, nil
}

// PredictProba returns the class probabilities of x, indexed by label.
func (m *LogisticRegression) PredictProba(x []float32) ([]float64, error) {
	scores, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	softmax(scores)
	return scores, nil
}

// Predict returns the most probable label for x. Ties go to the lowest label.
func (m *LogisticRegression) Predict(x []float32) (dataset.Label, error) {
	scores, err := m.DecisionFunction(x)
	if err != nil {
		return 0, err
	}
	return dataset.Label(floats.MaxIdx(scores)), nil
}

// PredictBatch predicts every row of X.
func (m *LogisticRegression) PredictBatch(X [][]float32) ([]dataset.Label, error) {
	out := make([]dataset.Label, len(X))
	for i, x := range X {
		l, err := m.Predict(x)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out[i] = l
	}
	return out, nil
}

// Score returns the mean accuracy on X and y, in [0,1].
func (m *LogisticRegression) Score(X [][]float32, y []dataset.Label) (float64, error) {
	if len(X) != len(y) {
		return 0, errors.Wrapf(ErrDimensionMismatch, "%d rows and %d labels", len(X), len(y))
	}
	pred, err := m.PredictBatch(X)
	if err != nil {
		return 0, err
	}
	return Accuracy(y, pred)
}

// checkTrainingSet validates X and y and returns the feature length.
func checkTrainingSet(X [][]float32, y []dataset.Label) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("cannot fit on an empty training set")
	}
	if len(X) != len(y) {
		return 0, errors.Wrapf(ErrDimensionMismatch, "%d rows and %d labels", len(X), len(y))
	}
	d := len(X[0])
	if d == 0 {
		return 0, errors.New("feature vectors are empty")
	}
	for i, x := range X {
		if len(x) != d {
			return 0, errors.Wrapf(ErrDimensionMismatch, "row %d has %d features, expected %d", i, len(x), d)
		}
		if !y[i].Valid() {
			return 0, errors.Errorf("row %d has invalid label %d", i, y[i])
		}
	}
	return d, nil
}

// logits writes coef·x + intercept into dst.
func logits(coef [][]float64, intercept []float64, x []float32, dst []float64) {
	for k, row := range coef {
		s := intercept[k]
		for j, v := range x {
			s += row[j] * float64(v)
		}
		dst[k] = s
	}
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// softmax converts scores to probabilities in place.
func softmax(scores []float64) {
	lse := floats.LogSumExp(scores)
	for k, s := range scores {
		scores[k] = math.Exp(s - lse)
	}
}
