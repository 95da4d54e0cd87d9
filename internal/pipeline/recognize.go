package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// Recognition is the text read from one image along with its grid shape.
type Recognition struct {
	Text string `json:"text"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// Recognize tiles img, predicts every patch in one batch and stitches the
// predictions back in row-major order. Images smaller than one patch give
// empty text without calling the classifier.
func (o *Orchestrator) Recognize(ctx context.Context, img *image.NRGBA) (*Recognition, error) {
	grid := imaging.Tile(img, o.cfg.Shape)
	if grid.Len() == 0 {
		return &Recognition{}, nil
	}

	seqs, err := o.clf.Predict(ctx, grid.Patches)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	text, err := imaging.Stitch(imaging.PredictionGrid{Rows: grid.Rows, Cols: grid.Cols, Cells: seqs})
	if err != nil {
		return nil, err
	}
	if !o.cfg.KeepPadding {
		text = trimLines(text)
	}
	return &Recognition{Text: text, Rows: grid.Rows, Cols: grid.Cols}, nil
}

// ImageToString returns the text read from img.
func (o *Orchestrator) ImageToString(ctx context.Context, img *image.NRGBA) (string, error) {
	rec, err := o.Recognize(ctx, img)
	if err != nil {
		return "", err
	}
	return rec.Text, nil
}

// RecognizeFile loads path and reads its text. A file that cannot be opened
// or decoded is an ErrInferenceInput-class error.
func (o *Orchestrator) RecognizeFile(ctx context.Context, path string) (*Recognition, error) {
	img, err := imaging.LoadRGB(path)
	if err != nil {
		return nil, ocrerr.InferenceInput(path, err)
	}
	rec, err := o.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	o.log.WithFields(logrus.Fields{
		"file": path,
		"rows": rec.Rows,
		"cols": rec.Cols,
	}).Debug("image recognized")
	return rec, nil
}

// RecognizeFiles writes the text of each path to w, one block per file, in
// order. A failing file is logged and skipped; the joined failures are
// returned once every file has been tried. Cancellation stops immediately.
func (o *Orchestrator) RecognizeFiles(ctx context.Context, paths []string, w io.Writer) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rec, err := o.RecognizeFile(ctx, path)
		if err != nil {
			o.log.WithError(err).WithField("file", path).Error("recognition failed")
			errs = append(errs, err)
			continue
		}
		if _, err := fmt.Fprintln(w, rec.Text); err != nil {
			return errors.Join(append(errs, fmt.Errorf("failed to write output: %w", err))...)
		}
	}
	return errors.Join(errs...)
}

// trimLines removes trailing pad symbols from every line.
func trimLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = labels.TrimPadding(line)
	}
	return strings.Join(lines, "\n")
}
