package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/logging"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

type stubCache struct {
	setErrs []error
	getErrs []error
	values  map[string]string
	sets    int
	gets    int
}

func (s *stubCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	s.sets++
	if len(s.setErrs) > 0 {
		err := s.setErrs[0]
		s.setErrs = s.setErrs[1:]
		if err != nil {
			return err
		}
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.gets++
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		if err != nil {
			return "", err
		}
	}
	value, ok := s.values[key]
	if !ok {
		return "", ErrMiss
	}
	return value, nil
}

func (s *stubCache) Delete(ctx context.Context, key string) error {
	delete(s.values, key)
	return nil
}

func newTestRetrying(next Cache, attempts int) *Retrying {
	return &Retrying{
		next:           next,
		logger:         zap.NewNop(),
		retryAttempts:  attempts,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}
}

func TestRetryingRetriesTransientErrors(t *testing.T) {
	stub := &stubCache{setErrs: []error{transientTestError{}}}
	r := newTestRetrying(stub, 3)

	if err := r.Set(context.Background(), "session:1", "42", time.Minute); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if stub.sets != 2 {
		t.Fatalf("expected 2 attempts, got %d", stub.sets)
	}
	if stub.values["session:1"] != "42" {
		t.Fatalf("value not stored: %v", stub.values)
	}
}

func TestRetryingReturnsOperationErrorOnPermanentFailure(t *testing.T) {
	stub := &stubCache{setErrs: []error{errors.New("boom")}}
	r := newTestRetrying(stub, 3)

	ctx := logging.ContextWithRequestID(context.Background(), "req-2")
	err := r.Set(ctx, "k", "v", time.Minute)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if stub.sets != 1 {
		t.Fatalf("expected 1 attempt, got %d", stub.sets)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "cache.set" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if opErr.RequestID != "req-2" {
		t.Fatalf("unexpected request id: %s", opErr.RequestID)
	}
}

func TestRetryingPassesMissThroughWithoutRetry(t *testing.T) {
	stub := &stubCache{}
	r := newTestRetrying(stub, 3)

	_, err := r.Get(context.Background(), "absent")
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if stub.gets != 1 {
		t.Fatalf("expected a single lookup, got %d", stub.gets)
	}
}

func TestRetryingGivesUpAfterMaxAttempts(t *testing.T) {
	stub := &stubCache{getErrs: []error{transientTestError{}, transientTestError{}, transientTestError{}}}
	r := newTestRetrying(stub, 3)

	_, err := r.Get(context.Background(), "k")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if stub.gets != 3 {
		t.Fatalf("expected 3 attempts, got %d", stub.gets)
	}
}

func TestRetryingStopsOnCancelledContext(t *testing.T) {
	stub := &stubCache{setErrs: []error{transientTestError{}, transientTestError{}}}
	r := newTestRetrying(stub, 3)
	r.initialBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Set(ctx, "k", "v", 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryExpiresKeys(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	if got, err := m.Get(ctx, "k"); err != nil || got != "v" {
		t.Fatalf("expected hit, got %q %v", got, err)
	}

	now = now.Add(time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}

	_ = m.Set(ctx, "forever", "x", 0)
	_ = m.Delete(ctx, "forever")
	if _, err := m.Get(ctx, "forever"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected delete to remove key, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Fatal("nil must not be transient")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded should be transient")
	}
	if !IsTransient(transientTestError{}) {
		t.Fatal("timeout error should be transient")
	}
	if IsTransient(errors.New("permanent")) {
		t.Fatal("plain error should not be transient")
	}
}
