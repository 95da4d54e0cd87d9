// Package dataset loads labelled patch images for training and scoring.
//
// A dataset folder holds PNG (or any decodable) patch images plus an index
// file, Trn.csv by default, with one "filename,label" record per line. Each
// record yields one entry in four index-aligned slices: the decoded patch, the
// encoded label, the raw label and the filename.
package dataset

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// DefaultIndexFile is the index file name looked up inside a dataset folder.
const DefaultIndexFile = "Trn.csv"

// Options controls Load.
type Options struct {
	// IndexFile defaults to DefaultIndexFile.
	IndexFile string
	Shape     imaging.PatchShape
	Codec     labels.Codec
	Logger    logrus.FieldLogger
}

// Dataset holds index-aligned training data.
type Dataset struct {
	Images    []*image.NRGBA
	Encoded   []labels.Sequence
	Raw       []string
	Filenames []string
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Images) }

// Subset returns the records at idx, in idx order. Images are shared, not copied.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		Images:    make([]*image.NRGBA, len(idx)),
		Encoded:   make([]labels.Sequence, len(idx)),
		Raw:       make([]string, len(idx)),
		Filenames: make([]string, len(idx)),
	}
	for i, j := range idx {
		out.Images[i] = d.Images[j]
		out.Encoded[i] = d.Encoded[j]
		out.Raw[i] = d.Raw[j]
		out.Filenames[i] = d.Filenames[j]
	}
	return out
}

// Record is one parsed index line.
type Record struct {
	Filename string
	Label    string
}

// ReadIndex parses an index file. Each line is trimmed of surrounding
// whitespace; blank lines are skipped. A line must hold exactly one comma.
func ReadIndex(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ocrerr.Load(path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.Count(line, ",") != 1 {
			return nil, ocrerr.Load(path, fmt.Errorf("line %d: want \"filename,label\", got %q", lineNo, line))
		}
		name, label, _ := strings.Cut(line, ",")
		if name == "" {
			return nil, ocrerr.Load(path, fmt.Errorf("line %d: empty filename", lineNo))
		}
		records = append(records, Record{Filename: name, Label: label})
	}
	if err := scanner.Err(); err != nil {
		return nil, ocrerr.Load(path, err)
	}
	return records, nil
}

// Load reads the index in folder and every image it references. Any failure
// aborts the whole load with an ErrLoad-class error.
func Load(folder string, opts Options) (*Dataset, error) {
	if opts.IndexFile == "" {
		opts.IndexFile = DefaultIndexFile
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	records, err := ReadIndex(filepath.Join(folder, opts.IndexFile))
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Images:    make([]*image.NRGBA, 0, len(records)),
		Encoded:   make([]labels.Sequence, 0, len(records)),
		Raw:       make([]string, 0, len(records)),
		Filenames: make([]string, 0, len(records)),
	}
	for _, rec := range records {
		path := filepath.Join(folder, rec.Filename)
		img, err := imaging.LoadRGB(path)
		if err != nil {
			return nil, ocrerr.Load(path, err)
		}
		if !opts.Shape.Fits(img) {
			b := img.Bounds()
			return nil, ocrerr.Load(path, fmt.Errorf("image is %dx%d, want patch %s", b.Dx(), b.Dy(), opts.Shape))
		}
		seq, err := opts.Codec.Encode(rec.Label)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ds.Images = append(ds.Images, img)
		ds.Encoded = append(ds.Encoded, seq)
		ds.Raw = append(ds.Raw, rec.Label)
		ds.Filenames = append(ds.Filenames, rec.Filename)
	}

	log.WithFields(logrus.Fields{
		"folder":  folder,
		"records": ds.Len(),
	}).Info("dataset loaded")
	return ds, nil
}
