package classifier

import (
	"math"

	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// logEpsilon keeps log(p) finite when a probability underflows.
const logEpsilon = 1e-12

// fitAdam minimises the same objective as fitLBFGS with full-batch Adam on a
// gorgonia graph. It stops when the relative loss change falls below Tol.
func fitAdam(X [][]float32, y []dataset.Label, d int, opts Options) ([][]float64, []float64, FitResult, error) {
	n := len(X)
	k := dataset.NumClasses

	xs := make([]float64, n*d)
	for i, row := range X {
		for j, v := range row {
			xs[i*d+j] = float64(v)
		}
	}
	ys := make([]float64, n*k)
	for i, l := range y {
		ys[i*k+int(l)] = 1
	}

	g := G.NewGraph()
	xT := tensor.New(tensor.WithShape(n, d), tensor.WithBacking(xs))
	yT := tensor.New(tensor.WithShape(n, k), tensor.WithBacking(ys))

	xN := G.NewMatrix(g, tensor.Float64, G.WithShape(n, d), G.WithName("X"), G.WithValue(xT))
	yN := G.NewMatrix(g, tensor.Float64, G.WithShape(n, k), G.WithName("Y"), G.WithValue(yT))
	w := G.NewMatrix(g, tensor.Float64, G.WithShape(d, k), G.WithName("W"), G.WithInit(G.Zeroes()))
	b := G.NewMatrix(g, tensor.Float64, G.WithShape(1, k), G.WithName("B"), G.WithInit(G.Zeroes()))

	logit, err := G.Mul(xN, w)
	if err != nil {
		return nil, nil, FitResult{}, errors.Wrap(err, "building logits")
	}
	if logit, err = G.BroadcastAdd(logit, b, nil, []byte{0}); err != nil {
		return nil, nil, FitResult{}, errors.Wrap(err, "adding intercepts")
	}
	prob, err := G.SoftMax(logit)
	if err != nil {
		return nil, nil, FitResult{}, errors.Wrap(err, "building softmax")
	}
	logp := G.Must(G.Log(G.Must(G.Add(prob, G.NewConstant(logEpsilon)))))
	nll := G.Must(G.Neg(G.Must(G.Sum(G.Must(G.HadamardProd(yN, logp))))))
	dataLoss := G.Must(G.Div(nll, G.NewConstant(float64(n))))
	penalty := G.Must(G.Mul(
		G.Must(G.Sum(G.Must(G.Square(w)))),
		G.NewConstant(1/(2*opts.C*float64(n))),
	))
	loss := G.Must(G.Add(dataLoss, penalty))

	var lossVal G.Value
	G.Read(loss, &lossVal)

	if _, err := G.Grad(loss, w, b); err != nil {
		return nil, nil, FitResult{}, errors.Wrap(err, "computing gradients")
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(w, b))
	defer vm.Close()
	solver := G.NewAdamSolver(G.WithLearnRate(opts.LearnRate))

	result := FitResult{Loss: math.Inf(1)}
	for iter := 1; iter <= opts.MaxIter; iter++ {
		if err := vm.RunAll(); err != nil {
			return nil, nil, FitResult{}, errors.Wrapf(err, "adam iteration %d", iter)
		}
		if err := solver.Step(G.NodesToValueGrads(G.Nodes{w, b})); err != nil {
			return nil, nil, FitResult{}, errors.Wrapf(err, "adam step %d", iter)
		}
		cur, ok := lossVal.Data().(float64)
		vm.Reset()
		if !ok {
			return nil, nil, FitResult{}, errors.Errorf("unexpected loss type %T", lossVal.Data())
		}

		prev := result.Loss
		result.Loss = cur
		result.Iterations = iter
		if math.Abs(prev-cur) <= opts.Tol*math.Max(1, math.Abs(cur)) {
			result.Converged = true
			break
		}
	}

	wData, ok := w.Value().Data().([]float64)
	if !ok {
		return nil, nil, FitResult{}, errors.New("unexpected weight backing")
	}
	bData, ok := b.Value().Data().([]float64)
	if !ok {
		return nil, nil, FitResult{}, errors.New("unexpected intercept backing")
	}

	// W is d×k; coefficients are stored one row per class.
	coef := make([][]float64, k)
	for c := range coef {
		coef[c] = make([]float64, d)
		for j := 0; j < d; j++ {
			coef[c][j] = wData[j*k+c]
		}
	}
	return coef, append([]float64(nil), bData...), result, nil
}
