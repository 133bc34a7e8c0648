package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/config"
	"github.com/example/neuroscan/internal/handlers"
	"github.com/example/neuroscan/internal/inference"
	"github.com/example/neuroscan/internal/usecase"
)

// slowPredictor blocks each prediction until release is closed.
type slowPredictor struct {
	started chan struct{}
	release chan struct{}
}

func (p *slowPredictor) Predict(ctx context.Context, data []byte) (*usecase.PredictionResult, error) {
	select {
	case <-p.started:
	default:
		close(p.started)
	}
	<-p.release
	return &usecase.PredictionResult{Label: inference.NoTumor, Confidence: 0.88, Summary: "fallback"}, nil
}

func (p *slowPredictor) ModelState() inference.State { return inference.Ready }

func TestServerGracefulShutdown(t *testing.T) {
	logger := zap.NewNop()

	predictor := &slowPredictor{started: make(chan struct{}), release: make(chan struct{})}
	defer func() {
		select {
		case <-predictor.release:
		default:
			close(predictor.release)
		}
	}()

	cfg := &config.Config{
		Server: config.ServerConfig{MaxUploadBytes: 1 << 20},
		Logger: config.LoggerConfig{Level: "info"},
	}
	router := newRouter(cfg, logger)
	h := handlers.New(predictor, nil, nil, handlers.Config{MaxUploadSize: cfg.Server.MaxUploadBytes}, logger)
	handlers.RegisterRoutes(router, h, handlers.Middlewares{})

	t.Log("creating listener")
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	t.Logf("listening on %s", addr)
	waitForServer(t, addr)

	body, contentType := scanUpload(t)
	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		t.Log("sending request")
		resp, err := client.Post("http://"+addr+"/api/predict", contentType, body)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-predictor.started:
		t.Log("prediction started")
	case <-time.After(2 * time.Second):
		t.Fatal("prediction did not start in time")
	}

	t.Log("sending signal")
	signalCh <- syscall.SIGTERM

	time.Sleep(50 * time.Millisecond)
	close(predictor.release)
	t.Log("released prediction")

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(raw))
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatal("expected the request id middleware to tag the response")
		}
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil || payload["tumor_type"] != "notumor" {
			t.Fatalf("unexpected body %s (%v)", string(raw), err)
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
		t.Log("server shutdown complete")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func scanUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "scan.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
