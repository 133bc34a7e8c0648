package inference

import (
	"context"

	"github.com/example/neuroscan/internal/imageprocessor"
)

// Model is an executable classifier. Predict receives a batch in NHWC order
// and returns one probability vector per batch item. Implementations must be
// safe for concurrent Predict calls.
type Model interface {
	Predict(ctx context.Context, batch imageprocessor.Tensor) ([][]float32, error)
	Close() error
}

// Runtime deserializes an artifact into a Model.
type Runtime interface {
	Load(ctx context.Context, path string) (Model, error)
}

// AcceleratorConfigurer is implemented by runtimes that can enable on-demand
// accelerator memory growth. Failures are not fatal.
type AcceleratorConfigurer interface {
	EnableMemoryGrowth(ctx context.Context) error
}

// CompileOptions is the training configuration some runtimes insist on
// before accepting predict calls. It has no effect on inference results.
type CompileOptions struct {
	Optimizer string
	Loss      string
	Metrics   []string
}

// DefaultCompileOptions mirrors the configuration the classifier was trained with.
var DefaultCompileOptions = CompileOptions{
	Optimizer: "adam",
	Loss:      "categorical_crossentropy",
	Metrics:   []string{"accuracy"},
}

// Compiler is implemented by models that need a compile step.
type Compiler interface {
	Compile(opts CompileOptions) error
}

// ClassNamer is implemented by models that know their output class order.
type ClassNamer interface {
	ClassNames() []string
}
