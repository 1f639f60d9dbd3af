// Package evaluate scores the pipeline against a directory of labelled
// drawings. Files are named <LETTER>_<anything>.png, e.g. "Q_017.png".
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Brownie44l1/letter-api/internal/pipeline"
	"github.com/Brownie44l1/letter-api/internal/raster"
	"github.com/Brownie44l1/letter-api/internal/tensor"
)

var ErrNoSamples = errors.New("evaluate: no labelled samples found")

type Miss struct {
	File string
	Want string
	Got  string
}

type Report struct {
	Total   int
	Correct int
	Empty   int
	Failed  int
	Misses  []Miss
}

// Accuracy is correct predictions over every sample that produced one.
func (r Report) Accuracy() float64 {
	n := r.Total - r.Empty - r.Failed
	if n == 0 {
		return 0
	}
	return float64(r.Correct) / float64(n)
}

// LabelFromName extracts the expected letter from a sample file name.
func LabelFromName(name string) (string, bool) {
	base := filepath.Base(name)
	if len(base) < 2 || base[1] != '_' {
		return "", false
	}
	c := base[0]
	if c < 'A' || c > 'Z' {
		return "", false
	}
	return string(c), true
}

// Samples lists the labelled PNG files in dir, sorted by name.
func Samples(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		if _, ok := LabelFromName(e.Name()); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSamples, dir)
	}
	sort.Strings(files)
	return files, nil
}

func load(path string) (*raster.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := raster.Decode(data)
	return img, err
}

// Run predicts every file and tallies the results. step, if not nil, is
// called after each file.
func Run(ctx context.Context, p *pipeline.Pipeline, files []string, step func()) (Report, error) {
	var rep Report
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		want, _ := LabelFromName(path)
		rep.Total++

		res, err := predictFile(ctx, p, path)
		switch {
		case errors.Is(err, tensor.ErrEmptyInput):
			rep.Empty++
		case err != nil:
			rep.Failed++
		case res.Label == want:
			rep.Correct++
		default:
			rep.Misses = append(rep.Misses, Miss{File: filepath.Base(path), Want: want, Got: res.Label})
		}

		if step != nil {
			step()
		}
	}
	return rep, nil
}

func predictFile(ctx context.Context, p *pipeline.Pipeline, path string) (pipeline.Result, error) {
	img, err := load(path)
	if err != nil {
		return pipeline.Result{}, err
	}
	return p.Predict(ctx, pipeline.Static(img))
}
