// Package prediction selects a loaded model, runs inference on an assembled
// feature vector and formats the result for display.
package prediction

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"powercast/ml"
	"powercast/monitoring"
)

// Models is the read-only model lookup the service predicts with.
type Models interface {
	Get(name string) (ml.Predictor, bool)
	Names() []string
}

// Record is one successful prediction.
type Record struct {
	Model     string
	Features  ml.FeatureVector
	Value     float64
	CreatedAt time.Time
}

// Recorder persists successful predictions. Failures are logged only.
type Recorder interface {
	RecordPrediction(ctx context.Context, rec Record) error
}

type Result struct {
	Model  string
	Value  float64
	Text   string
	Cached bool
}

type Service struct {
	models    Models
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	recorder  Recorder
	cacheSize int
	cache     *lru.Cache[string, float64]
	now       func() time.Time
}

type Option func(*Service)

// WithCache keeps up to size results. Predictors are deterministic, so a
// cached value is identical to a fresh one.
func WithCache(size int) Option {
	return func(s *Service) { s.cacheSize = size }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(models Models, logger *zap.Logger, opts ...Option) (*Service, error) {
	if models == nil {
		return nil, errors.New("models are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{models: models, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize > 0 {
		cache, err := lru.New[string, float64](s.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Models returns the names available for selection.
func (s *Service) Models() []string {
	return s.models.Names()
}

// FormatResult renders a prediction the way it is shown to users.
func FormatResult(model string, value float64) string {
	return fmt.Sprintf("Predicted Energy Consumption: %.4f kW (using %s)", value, model)
}

// Predict runs the named model on vector.
func (s *Service) Predict(ctx context.Context, name string, vector ml.FeatureVector) (Result, error) {
	model, err := s.selectModel(name)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, name, model, vector)
}

// PredictSubmission checks the model selection before assembling features,
// so an invalid selection never reaches inference or parsing.
func (s *Service) PredictSubmission(ctx context.Context, sub ml.Submission) (Result, error) {
	model, err := s.selectModel(sub.ModelChoice)
	if err != nil {
		return Result{}, err
	}
	vector, err := ml.Assemble(sub)
	if err != nil {
		s.metrics.RecordPrediction(sub.ModelChoice, monitoring.OutcomeValidationError)
		return Result{}, err
	}
	return s.run(ctx, sub.ModelChoice, model, vector)
}

func (s *Service) selectModel(name string) (ml.Predictor, error) {
	if name != "" {
		if model, ok := s.models.Get(name); ok {
			return model, nil
		}
	}
	s.metrics.RecordPrediction("", monitoring.OutcomeSelectionError)
	return nil, &SelectionError{Name: name}
}

func (s *Service) run(ctx context.Context, name string, model ml.Predictor, vector ml.FeatureVector) (Result, error) {
	key := cacheKey(name, vector)
	value, cached := 0.0, false
	if s.cache != nil {
		value, cached = s.cache.Get(key)
	}

	if cached {
		s.metrics.RecordPrediction(name, monitoring.OutcomeCached)
	} else {
		start := time.Now()
		v, err := invoke(model, vector)
		s.metrics.ObserveInference(name, time.Since(start))
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = fmt.Errorf("%w: %v", ErrNonFinite, v)
		}
		if err != nil {
			s.logger.Error("An error occurred during prediction",
				zap.String("model", name), zap.Float64s("features", vector), zap.Error(err))
			s.metrics.RecordPrediction(name, monitoring.OutcomePredictionError)
			return Result{}, &PredictionError{Model: name, Err: err}
		}
		value = v
		s.metrics.RecordPrediction(name, monitoring.OutcomeSuccess)
		if s.cache != nil {
			s.cache.Add(key, value)
		}
	}

	// Every served prediction is recorded, cached or not.
	if s.recorder != nil {
		rec := Record{Model: name, Features: append(ml.FeatureVector(nil), vector...), Value: value, CreatedAt: s.now()}
		if err := s.recorder.RecordPrediction(ctx, rec); err != nil {
			s.logger.Warn("Failed to record prediction", zap.String("model", name), zap.Error(err))
		}
	}

	return Result{Model: name, Value: value, Text: FormatResult(name, value), Cached: cached}, nil
}

// invoke treats a panicking predictor like one that returned an error.
func invoke(model ml.Predictor, vector ml.FeatureVector) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predictor panicked: %v", r)
		}
	}()
	return model.Predict(vector)
}

func cacheKey(name string, vector ml.FeatureVector) string {
	var b strings.Builder
	b.Grow(len(name) + 1 + 8*len(vector))
	b.WriteString(name)
	b.WriteByte(0)
	var buf [8]byte
	for _, v := range vector {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		b.Write(buf[:])
	}
	return b.String()
}
