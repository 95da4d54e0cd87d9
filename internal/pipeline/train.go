package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/dataset"
	"github.com/ironsheep/deep-ocr/internal/eval"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// TrainReport is the outcome of one Train flow.
type TrainReport struct {
	eval.Report
	Samples []Sample `json:"samples"`
}

func (o *Orchestrator) loadDataset(folder string) (*dataset.Dataset, error) {
	ds, err := dataset.Load(folder, dataset.Options{
		IndexFile: o.cfg.IndexFile,
		Shape:     o.cfg.Shape,
		Codec:     o.cfg.Codec,
		Logger:    o.log,
	})
	if err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return nil, ocrerr.Load(folder, errors.New("dataset has no records"))
	}
	return ds, nil
}

// predictStrings runs chunked prediction over patches and decodes the result
// without trimming.
func (o *Orchestrator) predictStrings(ctx context.Context, ds *dataset.Dataset) ([]string, error) {
	seqs, err := classifier.PredictChunked(ctx, o.clf, ds.Images, o.cfg.ChunkSize, o.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	return labels.DecodeAll(seqs), nil
}

// Train fits the classifier on the configured dataset folder, reports
// train/test accuracy, refines on the full dataset and saves the model.
// Any failure aborts the flow and nothing is saved.
func (o *Orchestrator) Train(ctx context.Context) (*TrainReport, error) {
	o.clf.SetMaxIterations(o.cfg.MaxIterations)

	ds, err := o.loadDataset(o.cfg.DataDir)
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx := dataset.Split(ds.Len(), o.cfg.TestFraction, o.cfg.SplitSeed)
	trn := ds.Subset(trainIdx)
	o.log.WithFields(logrus.Fields{
		"train": len(trainIdx),
		"test":  len(testIdx),
	}).Info("fitting model")
	if err := o.clf.Fit(ctx, trn.Images, trn.Encoded); err != nil {
		return nil, fmt.Errorf("fit failed: %w", err)
	}

	predicted, err := o.predictStrings(ctx, ds)
	if err != nil {
		return nil, err
	}

	report := &TrainReport{}
	report.TrainRows, report.TestRows = len(trainIdx), len(testIdx)
	if report.Train, err = eval.Subset(predicted, ds.Raw, trainIdx); err != nil {
		return nil, err
	}
	if len(testIdx) > 0 {
		if report.Test, err = eval.Subset(predicted, ds.Raw, testIdx); err != nil {
			return nil, err
		}
	}
	o.log.WithFields(logrus.Fields{
		"train_score": report.Train,
		"test_score":  report.Test,
	}).Info("model scored")

	for _, i := range dataset.SampleIndices(ds.Len(), o.cfg.SampleFraction, o.cfg.SampleSeed) {
		s := Sample{Filename: ds.Filenames[i], Truth: ds.Raw[i], Predicted: predicted[i]}
		report.Samples = append(report.Samples, s)
		if o.SpotCheck != nil {
			o.SpotCheck(s)
		}
	}

	o.log.WithField("iterations", o.cfg.RefineIterations).Info("refining on full dataset")
	o.clf.SetMaxIterations(o.cfg.RefineIterations)
	if err := o.clf.Fit(ctx, ds.Images, ds.Encoded); err != nil {
		return nil, fmt.Errorf("refine failed: %w", err)
	}

	if err := o.save(); err != nil {
		return nil, err
	}
	return report, nil
}

func (o *Orchestrator) save() error {
	if err := os.MkdirAll(o.cfg.ModelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := o.clf.Save(o.ModelPath()); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	if err := classifier.SaveClasses(o.ClassesPath(), o.clf.Classes()); err != nil {
		return err
	}
	o.log.WithField("model", o.ModelPath()).Info("model saved")
	return nil
}

// Evaluate scores the current classifier on the labelled dataset in folder.
func (o *Orchestrator) Evaluate(ctx context.Context, folder string) (float64, error) {
	ds, err := o.loadDataset(folder)
	if err != nil {
		return 0, err
	}
	predicted, err := o.predictStrings(ctx, ds)
	if err != nil {
		return 0, err
	}
	score, err := eval.Score(predicted, ds.Raw)
	if err != nil {
		return 0, err
	}
	o.log.WithFields(logrus.Fields{
		"folder": folder,
		"rows":   ds.Len(),
		"score":  score,
	}).Info("dataset evaluated")
	return score, nil
}
