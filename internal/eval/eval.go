// Package eval scores predicted strings against ground truth.
//
// Accuracy is per character position, averaged within a row and then across
// rows. Rows are compared over the shorter of the two strings only, so a
// prediction trimmed of its padding still scores against the matching prefix
// of the truth.
package eval

import (
	"errors"
	"fmt"
)

// ErrNoRows is returned by Score when there is nothing to score.
var ErrNoRows = errors.New("no rows to score")

// RowAccuracy returns the share of matching runes over the first
// min(len(pred), len(truth)) positions. Two empty strings score 1; exactly
// one empty string scores 0.
func RowAccuracy(pred, truth string) float64 {
	p, t := []rune(pred), []rune(truth)
	n := len(p)
	if len(t) < n {
		n = len(t)
	}
	if n == 0 {
		if len(p) == 0 && len(t) == 0 {
			return 1
		}
		return 0
	}

	match := 0
	for i := 0; i < n; i++ {
		if p[i] == t[i] {
			match++
		}
	}
	return float64(match) / float64(n)
}

// Score averages RowAccuracy uniformly over rows.
func Score(pred, truth []string) (float64, error) {
	if len(pred) != len(truth) {
		return 0, fmt.Errorf("score: %d predictions for %d truth rows", len(pred), len(truth))
	}
	if len(truth) == 0 {
		return 0, ErrNoRows
	}

	var sum float64
	for i := range truth {
		sum += RowAccuracy(pred[i], truth[i])
	}
	return sum / float64(len(truth)), nil
}

// Subset picks rows idx from both slices and scores them.
func Subset(pred, truth []string, idx []int) (float64, error) {
	p := make([]string, len(idx))
	t := make([]string, len(idx))
	for i, j := range idx {
		if j < 0 || j >= len(pred) || j >= len(truth) {
			return 0, fmt.Errorf("score: row %d out of range", j)
		}
		p[i], t[i] = pred[j], truth[j]
	}
	return Score(p, t)
}

// Report summarizes one training evaluation.
type Report struct {
	Train     float64 `json:"train"`
	Test      float64 `json:"test"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
}

func (r Report) String() string {
	return fmt.Sprintf("train %.4f (%d rows), test %.4f (%d rows)", r.Train, r.TrainRows, r.Test, r.TestRows)
}
