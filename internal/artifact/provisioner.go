package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fetcher streams an artifact addressed by a store-specific remote id.
type Fetcher interface {
	Fetch(ctx context.Context, remoteID string) (io.ReadCloser, error)
}

// ProvisioningError reports that the artifact could not be made available
// at Path.
type ProvisioningError struct {
	Path     string
	RemoteID string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision artifact %q from %q: %v", e.Path, e.RemoteID, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Provisioner makes sure the model artifact exists on local disk.
type Provisioner struct {
	path     string
	remoteID string
	fetcher  Fetcher
	timeout  time.Duration
	logger   *zap.Logger

	mu sync.Mutex
}

// NewProvisioner builds a provisioner for one artifact. A zero timeout means
// the fetch is bounded only by ctx.
func NewProvisioner(path, remoteID string, fetcher Fetcher, timeout time.Duration, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		path:     path,
		remoteID: remoteID,
		fetcher:  fetcher,
		timeout:  timeout,
		logger:   logger.Named("artifact"),
	}
}

// Path returns the local artifact location.
func (p *Provisioner) Path() string { return p.path }

// EnsureArtifact fetches the artifact unless a file already exists at the
// configured path. The file is written to a sibling temp file and renamed
// into place, so readers never observe a partial artifact.
func (p *Provisioner) EnsureArtifact(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	present, err := exists(p.path)
	if err != nil {
		return p.fail(err)
	}
	if present {
		p.logger.Debug("artifact already present", zap.String("path", p.path))
		return nil
	}
	if p.fetcher == nil {
		return p.fail(errors.New("no fetcher configured"))
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.logger.Info("downloading model artifact", zap.String("path", p.path), zap.String("remote_id", p.remoteID))
	start := time.Now()

	body, err := p.fetcher.Fetch(ctx, p.remoteID)
	if err != nil {
		return p.fail(err)
	}
	defer body.Close()

	written, err := writeAtomic(p.path, body)
	if err != nil {
		return p.fail(err)
	}

	p.logger.Info("model artifact downloaded",
		zap.String("path", p.path),
		zap.Int64("bytes", written),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (p *Provisioner) fail(err error) error {
	return &ProvisioningError{Path: p.path, RemoteID: p.remoteID, Err: err}
}

func exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return true, nil
}

func writeAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return n, fmt.Errorf("write artifact: %w", err)
	}
	if n == 0 {
		return 0, errors.New("remote artifact is empty")
	}
	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, fmt.Errorf("move artifact into place: %w", err)
	}
	committed = true
	return n, nil
}
