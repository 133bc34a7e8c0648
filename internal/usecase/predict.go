package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/domain"
	"github.com/example/neuroscan/internal/imageprocessor"
	"github.com/example/neuroscan/internal/inference"
	"github.com/example/neuroscan/internal/logging"
	"github.com/example/neuroscan/internal/metrics"
	"github.com/example/neuroscan/internal/narrative"
)

// Classifier is the part of the inference engine the use case needs.
type Classifier interface {
	Predict(ctx context.Context, img image.Image) (*inference.Prediction, error)
	State() inference.State
}

// Summarizer produces the narrative attached to a prediction. It never fails.
type Summarizer interface {
	Summarize(ctx context.Context, label string, confidence float64) string
}

// PredictionResult is what the API returns for one scan.
type PredictionResult struct {
	Label      inference.Label
	Confidence float64
	Summary    string
}

// PredictionUseCase runs an uploaded scan through the classifier and
// attaches commentary.
type PredictionUseCase struct {
	classifier Classifier
	summarizer Summarizer
	logger     *zap.Logger
}

func NewPredictionUseCase(classifier Classifier, summarizer Summarizer, logger *zap.Logger) *PredictionUseCase {
	return &PredictionUseCase{classifier: classifier, summarizer: summarizer, logger: logger.Named("prediction_usecase")}
}

// ModelState reports the classifier lifecycle state.
func (uc *PredictionUseCase) ModelState() inference.State {
	return uc.classifier.State()
}

// Predict decodes data and classifies it. Decoding problems map to
// domain.ErrEmptyUpload for zero-byte uploads and to a "decode"
// *inference.PredictionError otherwise. While the model is not Ready every
// input fails with inference.ErrModelNotLoaded. Failures never carry a result.
func (uc *PredictionUseCase) Predict(ctx context.Context, data []byte) (*PredictionResult, error) {
	requestID := logging.RequestIDFrom(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)
	start := time.Now()

	if state := uc.classifier.State(); state != inference.Ready {
		metrics.RecordPredictionFailure("not_loaded")
		opLogger.Warn("prediction requested while model unavailable", zap.String("state", state.String()))
		return nil, logging.NewOperationError("usecase.predict", requestID, inference.ErrModelNotLoaded)
	}

	img, format, err := imageprocessor.Decode(data)
	if err != nil {
		metrics.RecordPredictionFailure("decode")
		if len(data) == 0 {
			return nil, domain.ErrEmptyUpload
		}
		opLogger.Info("upload could not be decoded", zap.Error(err), zap.Int("bytes", len(data)))
		return nil, logging.NewOperationError("usecase.predict", requestID, &inference.PredictionError{Stage: "decode", Err: err})
	}

	pred, err := uc.classifier.Predict(ctx, img)
	if err != nil {
		metrics.RecordPredictionFailure(failureStage(err))
		opLogger.Error("prediction failed", zap.Error(err), zap.String("format", format))
		return nil, logging.NewOperationError("usecase.predict", requestID, err)
	}
	if !pred.Label.Valid() {
		metrics.RecordPredictionFailure("output")
		err := &inference.PredictionError{Stage: "output", Err: fmt.Errorf("unknown label %q", pred.Label)}
		opLogger.Error("prediction failed", zap.Error(err))
		return nil, logging.NewOperationError("usecase.predict", requestID, err)
	}
	metrics.RecordPrediction(pred.Label.String(), time.Since(start))

	summary := uc.summarizer.Summarize(ctx, pred.Label.String(), pred.Confidence)
	metrics.RecordSummary(summary == narrative.Fallback)

	opLogger.Info("prediction served",
		zap.String("label", pred.Label.String()),
		zap.Float64("confidence", pred.Confidence),
		zap.String("format", format),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &PredictionResult{Label: pred.Label, Confidence: pred.Confidence, Summary: summary}, nil
}

func failureStage(err error) string {
	if errors.Is(err, inference.ErrModelNotLoaded) {
		return "not_loaded"
	}
	var predErr *inference.PredictionError
	if errors.As(err, &predErr) {
		return predErr.Stage
	}
	return "unknown"
}
