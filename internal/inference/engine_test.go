package inference

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/imageprocessor"
)

type stubProvisioner struct {
	err   error
	calls int
}

func (s *stubProvisioner) EnsureArtifact(ctx context.Context) error {
	s.calls++
	return s.err
}

func (s *stubProvisioner) Path() string { return "/models/classifier.json" }

type stubModel struct {
	mu         sync.Mutex
	out        [][]float32
	err        error
	panicValue interface{}
	compileErr error
	classes    []string
	shapes     [][]int
	compiled   []CompileOptions
	closed     bool
}

func (m *stubModel) Predict(ctx context.Context, batch imageprocessor.Tensor) ([][]float32, error) {
	m.mu.Lock()
	m.shapes = append(m.shapes, batch.Shape)
	m.mu.Unlock()
	if m.panicValue != nil {
		panic(m.panicValue)
	}
	return m.out, m.err
}

func (m *stubModel) Close() error {
	m.closed = true
	return nil
}

type compilingModel struct{ *stubModel }

func (m compilingModel) Compile(opts CompileOptions) error {
	m.compiled = append(m.compiled, opts)
	return m.compileErr
}

func (m compilingModel) ClassNames() []string { return m.classes }

type stubRuntime struct {
	model       Model
	err         error
	growthErr   error
	growthCalls int
	loads       int
	paths       []string
}

func (r *stubRuntime) Load(ctx context.Context, path string) (Model, error) {
	r.loads++
	r.paths = append(r.paths, path)
	if r.err != nil {
		return nil, r.err
	}
	return r.model, nil
}

func (r *stubRuntime) EnableMemoryGrowth(ctx context.Context) error {
	r.growthCalls++
	return r.growthErr
}

func grayImage(level uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 12, 12))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

func readyEngine(t *testing.T, model Model) *Engine {
	t.Helper()
	engine := NewEngine(&stubProvisioner{}, &stubRuntime{model: model}, 8, zap.NewNop())
	engine.Load(context.Background())
	if engine.State() != Ready {
		t.Fatalf("expected ready engine, got %s (%v)", engine.State(), engine.LoadError())
	}
	return engine
}

func TestPredictBeforeLoadReturnsNotLoaded(t *testing.T) {
	engine := NewEngine(&stubProvisioner{}, &stubRuntime{}, 8, zap.NewNop())

	for _, img := range []image.Image{grayImage(0), grayImage(255), nil} {
		pred, err := engine.Predict(context.Background(), img)
		if pred != nil {
			t.Fatalf("expected nil prediction, got %+v", pred)
		}
		if !errors.Is(err, ErrModelNotLoaded) {
			t.Fatalf("expected ErrModelNotLoaded, got %v", err)
		}
	}
	if engine.State() != Unloaded {
		t.Fatalf("unexpected state %s", engine.State())
	}
}

func TestLoadFailureLeavesEngineFailed(t *testing.T) {
	provErr := errors.New("drive unreachable")
	runtime := &stubRuntime{}
	engine := NewEngine(&stubProvisioner{err: provErr}, runtime, 8, zap.NewNop())

	engine.Load(context.Background())

	if engine.State() != Failed {
		t.Fatalf("expected failed state, got %s", engine.State())
	}
	if !errors.Is(engine.LoadError(), provErr) {
		t.Fatalf("expected provisioning error, got %v", engine.LoadError())
	}
	if runtime.loads != 0 {
		t.Fatal("runtime must not be invoked without an artifact")
	}
	if _, err := engine.Predict(context.Background(), grayImage(10)); !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestLoadRunsOnce(t *testing.T) {
	prov := &stubProvisioner{}
	runtime := &stubRuntime{model: &stubModel{out: [][]float32{{0.1, 0.2, 0.3, 0.4}}}}
	engine := NewEngine(prov, runtime, 8, zap.NewNop())

	engine.Load(context.Background())
	engine.Load(context.Background())

	if prov.calls != 1 || runtime.loads != 1 {
		t.Fatalf("expected single load, got provision=%d load=%d", prov.calls, runtime.loads)
	}
	if runtime.paths[0] != "/models/classifier.json" {
		t.Fatalf("runtime loaded unexpected path %q", runtime.paths[0])
	}
}

func TestLoadWarmsUpWithZeroBatchAndCompiles(t *testing.T) {
	model := compilingModel{&stubModel{
		out:     [][]float32{{0.25, 0.25, 0.25, 0.25}},
		classes: []string{"glioma", "meningioma", "notumor", "pituitary"},
	}}
	runtime := &stubRuntime{model: model, growthErr: errors.New("no GPU")}
	engine := NewEngine(&stubProvisioner{}, runtime, 299, zap.NewNop())

	engine.Load(context.Background())

	if engine.State() != Ready {
		t.Fatalf("memory growth failure must not be fatal, state=%s err=%v", engine.State(), engine.LoadError())
	}
	if runtime.growthCalls != 1 {
		t.Fatalf("expected memory growth attempt, got %d", runtime.growthCalls)
	}
	if len(model.compiled) != 1 || model.compiled[0].Optimizer != "adam" || model.compiled[0].Loss != "categorical_crossentropy" {
		t.Fatalf("unexpected compile calls: %+v", model.compiled)
	}
	if len(model.shapes) != 1 {
		t.Fatalf("expected one warm-up call, got %d", len(model.shapes))
	}
	want := []int{1, 299, 299, 3}
	for i, d := range want {
		if model.shapes[0][i] != d {
			t.Fatalf("warm-up shape %v, want %v", model.shapes[0], want)
		}
	}
}

func TestLoadFailsOnPrepareErrors(t *testing.T) {
	cases := map[string]struct {
		model Model
		stage string
	}{
		"compile": {
			model: compilingModel{&stubModel{compileErr: errors.New("bad optimizer"), out: [][]float32{{1, 0, 0, 0}}}},
			stage: "compile",
		},
		"class order": {
			model: compilingModel{&stubModel{classes: []string{"meningioma", "glioma", "notumor", "pituitary"}, out: [][]float32{{1, 0, 0, 0}}}},
			stage: "classes",
		},
		"warmup error": {
			model: &stubModel{err: errors.New("oom")},
			stage: "warmup",
		},
		"warmup shape": {
			model: &stubModel{out: [][]float32{{0.5, 0.5}}},
			stage: "warmup",
		},
		"warmup panic": {
			model: &stubModel{panicValue: "segfault"},
			stage: "panic",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			engine := NewEngine(&stubProvisioner{}, &stubRuntime{model: tc.model}, 8, zap.NewNop())
			engine.Load(context.Background())

			if engine.State() != Failed {
				t.Fatalf("expected failed, got %s", engine.State())
			}
			var loadErr *ModelLoadError
			if !errors.As(engine.LoadError(), &loadErr) {
				t.Fatalf("expected ModelLoadError, got %T", engine.LoadError())
			}
			if loadErr.Stage != tc.stage {
				t.Fatalf("expected stage %q, got %q", tc.stage, loadErr.Stage)
			}
		})
	}
}

func TestLoadDeserializeFailure(t *testing.T) {
	engine := NewEngine(&stubProvisioner{}, &stubRuntime{err: errors.New("truncated")}, 8, zap.NewNop())
	engine.Load(context.Background())

	var loadErr *ModelLoadError
	if !errors.As(engine.LoadError(), &loadErr) || loadErr.Stage != "deserialize" {
		t.Fatalf("expected deserialize ModelLoadError, got %v", engine.LoadError())
	}
}

func TestPredictReturnsArgMax(t *testing.T) {
	model := &stubModel{out: [][]float32{{0.1, 0.6, 0.2, 0.1}}}
	engine := readyEngine(t, model)

	pred, err := engine.Predict(context.Background(), grayImage(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred.Label != Meningioma {
		t.Fatalf("expected meningioma, got %s", pred.Label)
	}
	if math.Abs(pred.Confidence-0.6) > 1e-6 {
		t.Fatalf("expected confidence 0.6, got %f", pred.Confidence)
	}
	sum := 0.0
	for _, p := range pred.Probabilities {
		sum += p
	}
	if math.Abs(sum-1) > 1e-3 {
		t.Fatalf("probabilities sum to %f", sum)
	}
}

func TestPredictFailuresNeverPanic(t *testing.T) {
	cases := map[string]struct {
		mutate func(*stubModel)
		img    image.Image
		stage  string
	}{
		"nil image":     {img: nil, stage: "preprocess"},
		"runtime error": {mutate: func(m *stubModel) { m.err = errors.New("device lost") }, img: grayImage(1), stage: "inference"},
		"wrong width":   {mutate: func(m *stubModel) { m.out = [][]float32{{1, 0, 0}} }, img: grayImage(1), stage: "output"},
		"two rows":      {mutate: func(m *stubModel) { m.out = [][]float32{{1, 0, 0, 0}, {1, 0, 0, 0}} }, img: grayImage(1), stage: "output"},
		"not normal":    {mutate: func(m *stubModel) { m.out = [][]float32{{3, -1, 0, 0}} }, img: grayImage(1), stage: "output"},
		"nan":           {mutate: func(m *stubModel) { m.out = [][]float32{{float32(math.NaN()), 0, 0, 1}} }, img: grayImage(1), stage: "output"},
		"panic":         {mutate: func(m *stubModel) { m.panicValue = "boom" }, img: grayImage(1), stage: "panic"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			model := &stubModel{out: [][]float32{{0.25, 0.25, 0.25, 0.25}}}
			engine := readyEngine(t, model)
			if tc.mutate != nil {
				tc.mutate(model)
			}

			pred, err := engine.Predict(context.Background(), tc.img)
			if pred != nil {
				t.Fatalf("expected nil prediction, got %+v", pred)
			}
			var predErr *PredictionError
			if !errors.As(err, &predErr) {
				t.Fatalf("expected PredictionError, got %v", err)
			}
			if predErr.Stage != tc.stage {
				t.Fatalf("expected stage %q, got %q", tc.stage, predErr.Stage)
			}
		})
	}
}

func TestPredictConcurrentReads(t *testing.T) {
	engine := readyEngine(t, &stubModel{out: [][]float32{{0.7, 0.1, 0.1, 0.1}}})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(level uint8) {
			defer wg.Done()
			pred, err := engine.Predict(context.Background(), grayImage(level))
			if err != nil {
				errs <- err
				return
			}
			if pred.Label != Glioma {
				errs <- errors.New("unexpected label " + pred.Label.String())
			}
		}(uint8(i * 10))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestCloseReleasesModel(t *testing.T) {
	model := &stubModel{out: [][]float32{{0.25, 0.25, 0.25, 0.25}}}
	engine := readyEngine(t, model)
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}
	if !model.closed {
		t.Fatal("expected model to be closed")
	}
}

func TestLabelValid(t *testing.T) {
	for _, l := range Labels {
		if !l.Valid() {
			t.Fatalf("%s should be valid", l)
		}
	}
	if Label("astrocytoma").Valid() {
		t.Fatal("unknown label reported valid")
	}
}
