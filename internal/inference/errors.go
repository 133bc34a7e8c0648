package inference

import (
	"errors"
	"fmt"
)

// ErrModelNotLoaded is returned by Predict while the engine is not Ready.
var ErrModelNotLoaded = errors.New("model not loaded")

// ModelLoadError reports a malformed or incompatible artifact.
type ModelLoadError struct {
	Path  string
	Stage string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q (%s): %v", e.Path, e.Stage, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// PredictionError reports a failed inference on a single image.
type PredictionError struct {
	Stage string
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed (%s): %v", e.Stage, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }
