package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/imageprocessor"
)

// probabilityTolerance bounds how far an output vector may sum from 1.
const probabilityTolerance = 1e-3

// ArtifactProvisioner makes the model artifact available on local disk.
type ArtifactProvisioner interface {
	EnsureArtifact(ctx context.Context) error
	Path() string
}

// Prediction is the classifier verdict for one image.
type Prediction struct {
	Label      Label
	Confidence float64
	// Probabilities is indexed like Labels.
	Probabilities []float64
}

// Engine owns the loaded model. It is loaded once and read-only afterwards,
// so Predict may be called from any number of goroutines.
type Engine struct {
	provisioner ArtifactProvisioner
	runtime     Runtime
	inputSize   int
	logger      *zap.Logger

	once    sync.Once
	state   atomic.Int32
	model   Model
	loadErr error
}

// NewEngine constructs an unloaded engine.
func NewEngine(provisioner ArtifactProvisioner, runtime Runtime, inputSize int, logger *zap.Logger) *Engine {
	return &Engine{
		provisioner: provisioner,
		runtime:     runtime,
		inputSize:   inputSize,
		logger:      logger.Named("inference"),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// LoadError returns the error that left the engine Failed, if any.
func (e *Engine) LoadError() error {
	if e.State() != Failed {
		return nil
	}
	return e.loadErr
}

// InputSize is the square resolution images are resampled to.
func (e *Engine) InputSize() int { return e.inputSize }

// Load provisions, deserializes, compiles and warms up the model. It runs at
// most once; later calls are no-ops. Failures are logged and leave the engine
// Failed instead of being returned.
func (e *Engine) Load(ctx context.Context) {
	e.once.Do(func() {
		e.state.Store(int32(Loading))
		start := time.Now()

		model, err := e.load(ctx)
		if err != nil {
			e.loadErr = err
			e.state.Store(int32(Failed))
			e.logger.Error("model load failed, predictions will be rejected", zap.Error(err))
			return
		}

		e.model = model
		e.state.Store(int32(Ready))
		e.logger.Info("model loaded", zap.Duration("elapsed", time.Since(start)), zap.Int("input_size", e.inputSize))
	})
}

func (e *Engine) load(ctx context.Context) (model Model, err error) {
	path := ""
	if e.provisioner != nil {
		path = e.provisioner.Path()
	}
	defer func() {
		if r := recover(); r != nil {
			if model != nil {
				_ = model.Close()
			}
			model = nil
			err = &ModelLoadError{Path: path, Stage: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	if e.provisioner == nil || e.runtime == nil {
		return nil, &ModelLoadError{Path: path, Stage: "setup", Err: errors.New("engine has no provisioner or runtime")}
	}
	if err := e.provisioner.EnsureArtifact(ctx); err != nil {
		return nil, err
	}

	if acc, ok := e.runtime.(AcceleratorConfigurer); ok {
		if err := acc.EnableMemoryGrowth(ctx); err != nil {
			e.logger.Warn("accelerator memory growth not enabled", zap.Error(err))
		}
	}

	model, err = e.runtime.Load(ctx, path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Stage: "deserialize", Err: err}
	}
	if model == nil {
		return nil, &ModelLoadError{Path: path, Stage: "deserialize", Err: errors.New("runtime returned no model")}
	}

	if err := e.prepare(ctx, model); err != nil {
		_ = model.Close()
		return nil, &ModelLoadError{Path: path, Stage: stageOf(err), Err: err}
	}
	return model, nil
}

type stageError struct {
	stage string
	err   error
}

func (s *stageError) Error() string { return s.err.Error() }
func (s *stageError) Unwrap() error { return s.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "prepare"
}

func (e *Engine) prepare(ctx context.Context, model Model) error {
	if c, ok := model.(Compiler); ok {
		if err := c.Compile(DefaultCompileOptions); err != nil {
			return &stageError{stage: "compile", err: err}
		}
	}

	if n, ok := model.(ClassNamer); ok {
		if err := checkClassOrder(n.ClassNames()); err != nil {
			return &stageError{stage: "classes", err: err}
		}
	}

	out, err := model.Predict(ctx, imageprocessor.Zeros(e.inputSize))
	if err != nil {
		return &stageError{stage: "warmup", err: err}
	}
	if _, err := probabilities(out); err != nil {
		return &stageError{stage: "warmup", err: err}
	}
	return nil
}

func checkClassOrder(names []string) error {
	if len(names) != len(Labels) {
		return fmt.Errorf("model reports %d classes, expected %d", len(names), len(Labels))
	}
	for i, name := range names {
		if Label(name) != Labels[i] {
			return fmt.Errorf("class %d is %q, expected %q", i, name, Labels[i])
		}
	}
	return nil
}

// Predict classifies img. On any failure it returns a nil prediction and an
// error: ErrModelNotLoaded when the engine is not Ready, *PredictionError
// otherwise. It never panics.
func (e *Engine) Predict(ctx context.Context, img image.Image) (pred *Prediction, err error) {
	if e.State() != Ready {
		return nil, ErrModelNotLoaded
	}
	defer func() {
		if r := recover(); r != nil {
			pred = nil
			err = &PredictionError{Stage: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	tensor, err := imageprocessor.Preprocess(img, e.inputSize)
	if err != nil {
		return nil, &PredictionError{Stage: "preprocess", Err: err}
	}

	out, err := e.model.Predict(ctx, tensor)
	if err != nil {
		return nil, &PredictionError{Stage: "inference", Err: err}
	}

	probs, err := probabilities(out)
	if err != nil {
		return nil, &PredictionError{Stage: "output", Err: err}
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return &Prediction{
		Label:         Labels[best],
		Confidence:    probs[best],
		Probabilities: probs,
	}, nil
}

// Close releases the model, if one was loaded.
func (e *Engine) Close() error {
	if e.State() != Ready || e.model == nil {
		return nil
	}
	return e.model.Close()
}

// probabilities validates a batch-of-one output and widens it to float64.
func probabilities(out [][]float32) ([]float64, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("expected 1 output row, got %d", len(out))
	}
	row := out[0]
	if len(row) != len(Labels) {
		return nil, fmt.Errorf("expected %d class scores, got %d", len(Labels), len(row))
	}

	probs := make([]float64, len(row))
	sum := 0.0
	for i, v := range row {
		p := float64(v)
		if math.IsNaN(p) || p < 0 || p > 1+probabilityTolerance {
			return nil, fmt.Errorf("score %d is not a probability: %v", i, v)
		}
		probs[i] = math.Min(p, 1)
		sum += p
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return nil, fmt.Errorf("class scores sum to %.6f, expected 1", sum)
	}
	return probs, nil
}
