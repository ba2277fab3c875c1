package classifier

import (
	"log/slog"
	"math"

	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// lbfgsMemory is the number of correction pairs kept by L-BFGS.
const lbfgsMemory = 10

// objective evaluates the penalised cross-entropy and its gradient over a
// flat parameter vector laid out as k weight rows of length d followed by k
// intercepts. Loss and gradient are scaled by 1/n, which leaves the minimiser
// unchanged. The last evaluation is cached because optimize calls Func and
// Grad separately at the same point.
type objective struct {
	X      [][]float32
	y      []dataset.Label
	d      int
	k      int
	lambda float64

	lastX    []float64
	lastLoss float64
	lastGrad []float64
	scores   []float64
}

func newObjective(X [][]float32, y []dataset.Label, d int, c float64) *objective {
	k := dataset.NumClasses
	return &objective{
		X:      X,
		y:      y,
		d:      d,
		k:      k,
		lambda: 1 / c,
		scores: make([]float64, k),
	}
}

func (o *objective) numParams() int {
	return o.k * (o.d + 1)
}

// unpack views a flat parameter vector as weight rows and intercepts.
func (o *objective) unpack(x []float64) ([][]float64, []float64) {
	coef := make([][]float64, o.k)
	for k := range coef {
		coef[k] = x[k*o.d : (k+1)*o.d]
	}
	return coef, x[o.k*o.d:]
}

func (o *objective) evaluate(x []float64) {
	if o.lastX != nil && floats.Equal(x, o.lastX) {
		return
	}

	n := float64(len(o.X))
	coef, intercept := o.unpack(x)
	grad := make([]float64, len(x))
	gcoef, gintercept := o.unpack(grad)

	var loss float64
	for i, row := range o.X {
		logits(coef, intercept, row, o.scores)
		lse := floats.LogSumExp(o.scores)
		label := int(o.y[i])
		loss += lse - o.scores[label]

		for k := 0; k < o.k; k++ {
			r := math.Exp(o.scores[k] - lse)
			if k == label {
				r--
			}
			if r == 0 {
				continue
			}
			gintercept[k] += r
			g := gcoef[k]
			for j, v := range row {
				g[j] += r * float64(v)
			}
		}
	}

	var sq float64
	for k := 0; k < o.k; k++ {
		sq += floats.Dot(coef[k], coef[k])
		floats.AddScaled(gcoef[k], o.lambda, coef[k])
	}
	loss += 0.5 * o.lambda * sq

	floats.Scale(1/n, grad)
	o.lastLoss = loss / n
	o.lastGrad = grad
	o.lastX = append(o.lastX[:0], x...)
}

func (o *objective) Func(x []float64) float64 {
	o.evaluate(x)
	return o.lastLoss
}

func (o *objective) Grad(grad, x []float64) {
	o.evaluate(x)
	copy(grad, o.lastGrad)
}

// fitLBFGS minimises the objective from zero weights.
func fitLBFGS(X [][]float32, y []dataset.Label, d int, opts Options) ([][]float64, []float64, FitResult, error) {
	obj := newObjective(X, y, d, opts.C)
	problem := optimize.Problem{
		Func: obj.Func,
		Grad: obj.Grad,
	}
	settings := &optimize.Settings{
		GradientThreshold: opts.Tol,
		MajorIterations:   opts.MaxIter,
	}

	x0 := make([]float64, obj.numParams())
	res, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{Store: lbfgsMemory})
	if res == nil {
		return nil, nil, FitResult{}, errors.Wrap(err, "lbfgs failed")
	}
	if err != nil {
		slog.Warn("lbfgs stopped early", "status", res.Status.String(), "error", err)
	}

	coef, intercept := obj.unpack(res.X)
	out := make([][]float64, len(coef))
	for k := range coef {
		out[k] = append([]float64(nil), coef[k]...)
	}

	result := FitResult{
		Iterations: res.Stats.MajorIterations,
		Loss:       res.F,
		Converged:  err == nil && res.Status != optimize.IterationLimit,
	}
	return out, append([]float64(nil), intercept...), result, nil
}
