// Package narrative turns a classification into a short plain-language
// commentary using a generative text model.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/cache"
	"github.com/example/neuroscan/internal/logging"
)

// Fallback is returned whenever no commentary could be produced.
const Fallback = "Gemini summary not available."

// Summarizer produces commentary for a label and confidence in [0,1].
type Summarizer interface {
	Summarize(ctx context.Context, label string, confidence float64) (string, error)
}

// Enricher wraps a Summarizer with a deadline, a result cache and the
// fallback text. A nil summarizer disables enrichment.
type Enricher struct {
	summarizer Summarizer
	cache      cache.Cache
	timeout    time.Duration
	ttl        time.Duration
	logger     *zap.Logger
}

// NewEnricher builds an Enricher. c may be nil to disable caching.
func NewEnricher(summarizer Summarizer, c cache.Cache, timeout, ttl time.Duration, logger *zap.Logger) *Enricher {
	return &Enricher{
		summarizer: summarizer,
		cache:      c,
		timeout:    timeout,
		ttl:        ttl,
		logger:     logger.Named("narrative"),
	}
}

// Enabled reports whether a summarizer is configured.
func (e *Enricher) Enabled() bool { return e.summarizer != nil }

// Summarize never fails: errors, timeouts and empty answers all yield Fallback.
func (e *Enricher) Summarize(ctx context.Context, label string, confidence float64) string {
	if e.summarizer == nil {
		return Fallback
	}
	requestID := logging.RequestIDFrom(ctx)
	logger := logging.WithOperation(e.logger, "narrative.summarize", requestID)
	key := cacheKey(label, confidence)

	if e.cache != nil {
		if text, err := e.cache.Get(ctx, key); err == nil && text != "" {
			return text
		} else if err != nil && !errors.Is(err, cache.ErrMiss) {
			logger.Warn("summary cache read failed", zap.Error(err))
		}
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	text, err := e.call(callCtx, label, confidence)
	if err != nil {
		logger.Warn("summary unavailable", zap.Error(logging.NewOperationError("narrative.summarize", requestID, err)), zap.String("label", label))
		return Fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		logger.Warn("summary was empty", zap.String("label", label))
		return Fallback
	}

	if e.cache != nil && e.ttl > 0 {
		if err := e.cache.Set(ctx, key, text, e.ttl); err != nil {
			logger.Warn("summary cache write failed", zap.Error(err))
		}
	}
	return text
}

func (e *Enricher) call(ctx context.Context, label string, confidence float64) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("summarizer panic: %v", r)
		}
	}()
	return e.summarizer.Summarize(ctx, label, confidence)
}

func cacheKey(label string, confidence float64) string {
	return fmt.Sprintf("summary:%s:%.2f", label, confidence)
}
