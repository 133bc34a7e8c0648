package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/config"
	"github.com/example/neuroscan/internal/imageprocessor"
	"github.com/example/neuroscan/internal/inference"
	"github.com/example/neuroscan/internal/inference/linear"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "fetch-model", "create-admin"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (err=%v)", name, cmd, err)
		}
	}
	if root.PersistentFlags().Lookup("env-file") == nil || root.PersistentFlags().Lookup("addr") == nil {
		t.Fatalf("expected persistent flags env-file and addr")
	}
}

func TestCreateAdminRequiresCredentials(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")

	root := newRootCmd()
	root.SetArgs([]string{"create-admin", "--username", "ops"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "ADMIN_PASSWORD") {
		t.Fatalf("expected missing password error, got %v", err)
	}
}

func TestNewEngineProvisionsAndLoadsLinearModel(t *testing.T) {
	const size, grid = 16, 4
	a := &linear.Artifact{
		Format:    linear.Format,
		InputSize: size,
		Grid:      grid,
		Classes:   []string{"glioma", "meningioma", "notumor", "pituitary"},
		Bias:      []float32{0, 0, 1, 0},
	}
	for k := 0; k < 4; k++ {
		a.Weights = append(a.Weights, make([]float32, grid*grid*imageprocessor.Channels))
	}
	var body bytes.Buffer
	if err := linear.Write(&body, a); err != nil {
		t.Fatalf("encode artifact: %v", err)
	}

	downloads := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body.Bytes())
	}))
	defer srv.Close()

	cfg := &config.Config{Model: config.ModelConfig{
		Path:         filepath.Join(t.TempDir(), "classifier.json"),
		Source:       config.SourceHTTP,
		RemoteID:     srv.URL + "/classifier.json",
		Runtime:      config.RuntimeLinear,
		InputSize:    size,
		FetchTimeout: 5 * time.Second,
	}}

	engine, closeEngine, err := newEngine(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	defer closeEngine()

	engine.Load(context.Background())
	if engine.State() != inference.Ready {
		t.Fatalf("expected ready engine, got %s: %v", engine.State(), engine.LoadError())
	}
	if downloads != 1 {
		t.Fatalf("expected one download, got %d", downloads)
	}
}

func TestNewEngineFailsClosedOnMissingArtifact(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := &config.Config{Model: config.ModelConfig{
		Path:         filepath.Join(t.TempDir(), "classifier.json"),
		Source:       config.SourceHTTP,
		RemoteID:     srv.URL + "/missing.json",
		Runtime:      config.RuntimeLinear,
		InputSize:    16,
		FetchTimeout: 5 * time.Second,
	}}

	engine, closeEngine, err := newEngine(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	defer closeEngine()

	engine.Load(context.Background())
	if engine.State() != inference.Failed {
		t.Fatalf("expected failed engine, got %s", engine.State())
	}
	if engine.LoadError() == nil {
		t.Fatalf("expected a load error")
	}
}
