package inference_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/imageprocessor"
	"github.com/example/neuroscan/internal/inference"
	"github.com/example/neuroscan/internal/inference/linear"
)

type fileProvisioner struct{ path string }

func (p fileProvisioner) EnsureArtifact(context.Context) error { return nil }
func (p fileProvisioner) Path() string                         { return p.path }

func newLinearEngine(t *testing.T) *inference.Engine {
	t.Helper()
	const size, grid = 32, 8

	a := &linear.Artifact{
		Format:    linear.Format,
		InputSize: size,
		Grid:      grid,
		Classes:   []string{"glioma", "meningioma", "notumor", "pituitary"},
		Bias:      make([]float32, 4),
	}
	features := grid * grid * imageprocessor.Channels
	for k := 0; k < 4; k++ {
		a.Weights = append(a.Weights, make([]float32, features))
	}
	for i := 0; i < features; i += imageprocessor.Channels {
		a.Weights[0][i] = 0.1   // red
		a.Weights[3][i+2] = 0.1 // blue
	}

	path := filepath.Join(t.TempDir(), "classifier.json")
	writeArtifact(t, path, a)

	engine := inference.NewEngine(fileProvisioner{path: path}, linear.Runtime{}, size, zap.NewNop())
	engine.Load(context.Background())
	require.Equal(t, inference.Ready, engine.State(), "load error: %v", engine.LoadError())
	return engine
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestLinearEngineClassifiesKnownImages(t *testing.T) {
	engine := newLinearEngine(t)

	pred, err := engine.Predict(context.Background(), solid(120, 90, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, inference.Glioma, pred.Label)
	assert.GreaterOrEqual(t, pred.Confidence, 0.5)

	pred, err = engine.Predict(context.Background(), solid(64, 64, color.RGBA{B: 255, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, inference.Pituitary, pred.Label)
	assert.GreaterOrEqual(t, pred.Confidence, 0.5)
}

func TestLinearEngineOutputsAreDistributions(t *testing.T) {
	engine := newLinearEngine(t)

	inputs := []image.Image{
		solid(10, 10, color.Gray{Y: 128}),
		solid(300, 200, color.RGBA{R: 20, G: 200, B: 90, A: 255}),
		solid(1, 1, color.White),
		image.NewGray16(image.Rect(0, 0, 40, 40)),
	}
	for _, img := range inputs {
		pred, err := engine.Predict(context.Background(), img)
		require.NoError(t, err)
		assert.True(t, pred.Label.Valid())
		assert.GreaterOrEqual(t, pred.Confidence, 0.0)
		assert.LessOrEqual(t, pred.Confidence, 1.0)

		sum := 0.0
		for _, p := range pred.Probabilities {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-3)
	}
}

func TestLinearEngineRejectsWrongInputSize(t *testing.T) {
	dir := t.TempDir()
	a := &linear.Artifact{
		Format:    linear.Format,
		InputSize: 16,
		Grid:      2,
		Classes:   []string{"glioma", "meningioma", "notumor", "pituitary"},
		Weights:   make([][]float32, 4),
		Bias:      make([]float32, 4),
	}
	for i := range a.Weights {
		a.Weights[i] = make([]float32, a.Features())
	}
	path := filepath.Join(dir, "classifier.json")
	writeArtifact(t, path, a)

	engine := inference.NewEngine(fileProvisioner{path: path}, linear.Runtime{}, 32, zap.NewNop())
	engine.Load(context.Background())

	assert.Equal(t, inference.Failed, engine.State())
	var loadErr *inference.ModelLoadError
	require.ErrorAs(t, engine.LoadError(), &loadErr)
	assert.Equal(t, "warmup", loadErr.Stage)
}

func writeArtifact(t *testing.T, path string, a *linear.Artifact) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, linear.Write(&buf, a))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}
