package dataset

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrEmptyDataset is returned when enumeration finds no images at all.
var ErrEmptyDataset = errors.New("dataset contains no images")

// SupportedExtensions lists the file extensions treated as images.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// Sample is one labelled image on disk.
type Sample struct {
	// Path is the path to the image file.
	Path string `json:"path"`
	// Label is the class the image belongs to.
	Label Label `json:"label"`
}

// IsImageFile reports whether the file name has a supported image extension.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Enumerate walks <root>/<split>/{Fire,Smoke,Neutral} recursively and returns
// every image it finds, labelled by the class directory it lives under.
// Classes are visited in WalkOrder; files within a class in lexical order.
//
// Arguments:
//   - root: The dataset root directory.
//   - split: The split directory under root (e.g. "Train" or "Test").
//
// Returns:
//   - []Sample: The labelled images.
//   - error: If a class directory is missing or unreadable, or nothing was found.
func Enumerate(root, split string) ([]Sample, error) {
	var samples []Sample
	for _, label := range WalkOrder {
		dir := filepath.Join(root, split, label.String())
		info, err := os.Stat(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "class directory %s", dir)
		}
		if !info.IsDir() {
			return nil, errors.Errorf("class path %s is not a directory", dir)
		}

		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !IsImageFile(d.Name()) {
				return nil
			}
			samples = append(samples, Sample{Path: path, Label: label})
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walking %s", dir)
		}
	}

	if len(samples) == 0 {
		return nil, errors.Wrapf(ErrEmptyDataset, "%s/%s", root, split)
	}
	return samples, nil
}

// Counts returns the number of samples per label.
func Counts(samples []Sample) map[Label]int {
	counts := make(map[Label]int, NumClasses)
	for _, s := range samples {
		counts[s.Label]++
	}
	return counts
}

// Paths returns the sample paths in order.
func Paths(samples []Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.Path
	}
	return out
}

// LabelsOf returns the sample labels in order.
func LabelsOf(samples []Sample) []Label {
	out := make([]Label, len(samples))
	for i, s := range samples {
		out[i] = s.Label
	}
	return out
}
