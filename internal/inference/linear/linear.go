// Package linear is an in-process runtime for grid-pooled linear softmax
// classifiers. The artifact is a JSON document; see Artifact.
package linear

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/example/neuroscan/internal/imageprocessor"
	"github.com/example/neuroscan/internal/inference"
)

// Format identifies the artifact schema.
const Format = "linear-softmax/v1"

// Artifact is the serialized model. Features are the per-channel means of a
// Grid x Grid partition of the input, laid out cell-major then RGB, so each
// weight row has Grid*Grid*3 entries.
type Artifact struct {
	Format    string      `json:"format"`
	InputSize int         `json:"input_size"`
	Grid      int         `json:"grid"`
	Classes   []string    `json:"classes"`
	Weights   [][]float32 `json:"weights"`
	Bias      []float32   `json:"bias"`
}

// Features returns the number of inputs to the linear layer.
func (a *Artifact) Features() int {
	return a.Grid * a.Grid * imageprocessor.Channels
}

// Validate checks that the artifact is internally consistent.
func (a *Artifact) Validate() error {
	switch {
	case a.Format != Format:
		return fmt.Errorf("unsupported format %q", a.Format)
	case a.InputSize <= 0:
		return fmt.Errorf("invalid input size %d", a.InputSize)
	case a.Grid <= 0 || a.Grid > a.InputSize:
		return fmt.Errorf("invalid grid %d for input size %d", a.Grid, a.InputSize)
	case len(a.Classes) == 0:
		return errors.New("no classes")
	case len(a.Weights) != len(a.Classes):
		return fmt.Errorf("%d weight rows for %d classes", len(a.Weights), len(a.Classes))
	case len(a.Bias) != len(a.Classes):
		return fmt.Errorf("%d biases for %d classes", len(a.Bias), len(a.Classes))
	}
	for i, row := range a.Weights {
		if len(row) != a.Features() {
			return fmt.Errorf("weight row %d has %d entries, expected %d", i, len(row), a.Features())
		}
	}
	return nil
}

// Write encodes a as JSON.
func Write(w io.Writer, a *Artifact) error {
	return json.NewEncoder(w).Encode(a)
}

// Runtime loads linear artifacts from disk.
type Runtime struct{}

var _ inference.Runtime = Runtime{}

func (Runtime) Load(_ context.Context, path string) (inference.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var a Artifact
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &Model{artifact: a}, nil
}

// Model evaluates an Artifact. It is immutable after Compile and safe for
// concurrent use.
type Model struct {
	artifact Artifact
	compiled *inference.CompileOptions
}

var (
	_ inference.Compiler   = (*Model)(nil)
	_ inference.ClassNamer = (*Model)(nil)
)

var supportedLosses = map[string]bool{
	"categorical_crossentropy":        true,
	"sparse_categorical_crossentropy": true,
}

// Compile records the training configuration. Only the losses that pair with
// a softmax head are accepted.
func (m *Model) Compile(opts inference.CompileOptions) error {
	if opts.Optimizer == "" {
		return errors.New("optimizer is required")
	}
	if !supportedLosses[opts.Loss] {
		return fmt.Errorf("loss %q is not compatible with a softmax head", opts.Loss)
	}
	m.compiled = &opts
	return nil
}

func (m *Model) ClassNames() []string {
	return append([]string(nil), m.artifact.Classes...)
}

func (m *Model) Predict(ctx context.Context, batch imageprocessor.Tensor) ([][]float32, error) {
	size := m.artifact.InputSize
	if len(batch.Shape) != 4 || batch.Shape[1] != size || batch.Shape[2] != size || batch.Shape[3] != imageprocessor.Channels {
		return nil, fmt.Errorf("input shape %v does not match [N %d %d %d]", batch.Shape, size, size, imageprocessor.Channels)
	}
	if batch.Len() != len(batch.Data) {
		return nil, fmt.Errorf("tensor has %d values for shape %v", len(batch.Data), batch.Shape)
	}

	perImage := size * size * imageprocessor.Channels
	out := make([][]float32, batch.Shape[0])
	for n := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		features := m.pool(batch.Data[n*perImage : (n+1)*perImage])
		out[n] = softmax(m.logits(features))
	}
	return out, nil
}

func (m *Model) Close() error { return nil }

// pool averages each channel over every grid cell.
func (m *Model) pool(img []float32) []float64 {
	size, grid := m.artifact.InputSize, m.artifact.Grid
	features := make([]float64, m.artifact.Features())
	for cy := 0; cy < grid; cy++ {
		y0, y1 := cy*size/grid, (cy+1)*size/grid
		for cx := 0; cx < grid; cx++ {
			x0, x1 := cx*size/grid, (cx+1)*size/grid
			var sums [imageprocessor.Channels]float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					base := (y*size + x) * imageprocessor.Channels
					for c := 0; c < imageprocessor.Channels; c++ {
						sums[c] += float64(img[base+c])
					}
				}
			}
			count := float64((y1 - y0) * (x1 - x0))
			cell := (cy*grid + cx) * imageprocessor.Channels
			for c := 0; c < imageprocessor.Channels; c++ {
				features[cell+c] = sums[c] / count
			}
		}
	}
	return features
}

func (m *Model) logits(features []float64) []float64 {
	logits := make([]float64, len(m.artifact.Classes))
	for k, row := range m.artifact.Weights {
		acc := float64(m.artifact.Bias[k])
		for i, w := range row {
			acc += float64(w) * features[i]
		}
		logits[k] = acc
	}
	return logits
}

func softmax(logits []float64) []float32 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, v)
	}
	exps := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		exps[i] = math.Exp(v - maxLogit)
		sum += exps[i]
	}
	out := make([]float32, len(logits))
	for i := range exps {
		out[i] = float32(exps[i] / sum)
	}
	return out
}
