package classifier

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/go-firesmoke/dataset"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Accuracy returns the fraction of predictions equal to the truth.
//
// Arguments:
//   - truth: The true labels.
//   - pred: The predicted labels, aligned with truth.
//
// Returns:
//   - float64: Accuracy in [0,1].
//   - error: If the slices are empty or differ in length.
func Accuracy(truth, pred []dataset.Label) (float64, error) {
	if len(truth) != len(pred) {
		return 0, errors.Wrapf(ErrDimensionMismatch, "%d labels and %d predictions", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return 0, errors.New("accuracy of an empty set is undefined")
	}
	correct := 0
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth)), nil
}

// ConfusionMatrix counts predictions per true class. Rows are true labels and
// columns predicted labels, both indexed by label value.
type ConfusionMatrix [dataset.NumClasses][dataset.NumClasses]int

// NewConfusionMatrix tallies truth against pred.
func NewConfusionMatrix(truth, pred []dataset.Label) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	if len(truth) != len(pred) {
		return cm, errors.Wrapf(ErrDimensionMismatch, "%d labels and %d predictions", len(truth), len(pred))
	}
	for i := range truth {
		if !truth[i].Valid() || !pred[i].Valid() {
			return cm, errors.Errorf("invalid label at %d", i)
		}
		cm[truth[i]][pred[i]]++
	}
	return cm, nil
}

// Total returns the number of tallied samples.
func (cm ConfusionMatrix) Total() int {
	n := 0
	for _, row := range cm {
		for _, v := range row {
			n += v
		}
	}
	return n
}

// String renders the matrix with class names.
func (cm ConfusionMatrix) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-10s", "true\\pred")
	for _, l := range dataset.Labels {
		fmt.Fprintf(&sb, "%9s", l)
	}
	sb.WriteByte('\n')
	for _, t := range dataset.Labels {
		fmt.Fprintf(&sb, "%-10s", t)
		for _, p := range dataset.Labels {
			fmt.Fprintf(&sb, "%9d", cm[t][p])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ClassMetrics holds the per-class scores.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarises classification quality per class and overall.
type Report struct {
	Classes     map[string]ClassMetrics `json:"classes"`
	Accuracy    float64                 `json:"accuracy"`
	MacroAvg    ClassMetrics            `json:"macro_avg"`
	WeightedAvg ClassMetrics            `json:"weighted_avg"`
}

// ClassificationReport derives precision, recall and F1 from a confusion
// matrix. A zero denominator yields 0 for that score.
func ClassificationReport(cm ConfusionMatrix) Report {
	r := Report{Classes: make(map[string]ClassMetrics, dataset.NumClasses)}
	total := cm.Total()

	var (
		precisions, recalls, f1s, weights []float64
		correct                           int
	)
	for _, l := range dataset.Labels {
		tp := cm[l][l]
		correct += tp
		predicted, support := 0, 0
		for o := range cm {
			predicted += cm[o][l]
			support += cm[l][o]
		}

		m := ClassMetrics{Support: support}
		m.Precision = ratio(tp, predicted)
		m.Recall = ratio(tp, support)
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[l.String()] = m

		precisions = append(precisions, m.Precision)
		recalls = append(recalls, m.Recall)
		f1s = append(f1s, m.F1)
		weights = append(weights, float64(support))
	}

	k := float64(dataset.NumClasses)
	r.MacroAvg = ClassMetrics{
		Precision: floats.Sum(precisions) / k,
		Recall:    floats.Sum(recalls) / k,
		F1:        floats.Sum(f1s) / k,
		Support:   total,
	}
	r.WeightedAvg = ClassMetrics{Support: total}
	if total > 0 {
		t := float64(total)
		r.WeightedAvg.Precision = floats.Dot(precisions, weights) / t
		r.WeightedAvg.Recall = floats.Dot(recalls, weights) / t
		r.WeightedAvg.F1 = floats.Dot(f1s, weights) / t
		r.Accuracy = float64(correct) / t
	}
	return r
}

// String renders the report as a table.
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-14s%10s%10s%10s%10s\n", "", "precision", "recall", "f1-score", "support")
	for _, l := range dataset.Labels {
		m := r.Classes[l.String()]
		fmt.Fprintf(&sb, "%-14s%10.2f%10.2f%10.2f%10d\n", l, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&sb, "\n%-14s%10s%10s%10.2f%10d\n", "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	for _, row := range []struct {
		name string
		m    ClassMetrics
	}{{"macro avg", r.MacroAvg}, {"weighted avg", r.WeightedAvg}} {
		fmt.Fprintf(&sb, "%-14s%10.2f%10.2f%10.2f%10d\n", row.name, row.m.Precision, row.m.Recall, row.m.F1, row.m.Support)
	}
	return sb.String()
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
