// Package dataset - Labelled image enumeration and train/test splitting.
package dataset

import "fmt"

// Label is the integer class identifier used by the classifier.
type Label int

// Label encoding is positional and deliberately not alphabetical.
const (
	// Neutral images contain neither fire nor smoke.
	Neutral Label = 0
	// Fire images contain visible flames.
	Fire Label = 1
	// Smoke images contain smoke without visible flames.
	Smoke Label = 2
)

// NumClasses is the number of labels the classifier distinguishes.
const NumClasses = 3

// Labels lists every label in index order.
var Labels = []Label{Neutral, Fire, Smoke}

// classNames maps a label index to its human-readable name and directory name.
var classNames = [NumClasses]string{
	Neutral: "Neutral",
	Fire:    "Fire",
	Smoke:   "Smoke",
}

// WalkOrder is the order in which class directories are enumerated.
var WalkOrder = []Label{Fire, Smoke, Neutral}

// String returns the class name for the label.
func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return classNames[l]
}

// Valid reports whether the label is one of the known classes.
func (l Label) Valid() bool {
	return l >= 0 && int(l) < NumClasses
}

// Names returns the class names in label index order.
func Names() []string {
	out := make([]string, NumClasses)
	copy(out, classNames[:])
	return out
}

// ParseLabel returns the label whose name matches s exactly.
//
// Arguments:
//   - s: A class name such as "Fire".
//
// Returns:
//   - Label: The matching label.
//   - error: If the name is not a known class.
func ParseLabel(s string) (Label, error) {
	for i, name := range classNames {
		if name == s {
			return Label(i), nil
		}
	}
	return -1, fmt.Errorf("unknown class name %q", s)
}
