package prediction

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"powercast/ml"
	"powercast/modelstore"
	"powercast/monitoring"
)

type stubModel struct {
	value float64
	err   error
	calls int
}

func (s *stubModel) Predict([]float64) (float64, error) {
	s.calls++
	return s.value, s.err
}

type memoryRecorder struct {
	records []Record
	err     error
}

func (m *memoryRecorder) RecordPrediction(_ context.Context, rec Record) error {
	m.records = append(m.records, rec)
	return m.err
}

func validSubmission(model string) ml.Submission {
	return ml.Submission{
		ModelChoice: model,
		Datetime:    "2024-03-15T14:30:00",
		Readings: map[string]string{
			"Global_reactive_power": "0.1",
			"Voltage":               "240",
			"Global_intensity":      "4.6",
			"Sub_metering_1":        "0",
			"Sub_metering_2":        "1",
			"Sub_metering_3":        "17",
		},
	}
}

func newService(t *testing.T, models map[string]ml.Predictor, opts ...Option) *Service {
	t.Helper()
	var loaded []modelstore.LoadedModel
	for _, name := range []string{"XGBoost Regressor", "Random Forest Regressor", "LightGBM Regressor"} {
		if p, ok := models[name]; ok {
			loaded = append(loaded, modelstore.LoadedModel{Name: name, Predictor: p})
		}
	}
	svc, err := NewService(modelstore.New(loaded...), zap.NewNop(), opts...)
	require.NoError(t, err)
	return svc
}

func TestPredictFormatsResult(t *testing.T) {
	stub := &stubModel{value: 42.0}
	svc := newService(t, map[string]ml.Predictor{"XGBoost Regressor": stub})

	res, err := svc.PredictSubmission(context.Background(), validSubmission("XGBoost Regressor"))
	require.NoError(t, err)
	assert.Equal(t, "Predicted Energy Consumption: 42.0000 kW (using XGBoost Regressor)", res.Text)
	assert.Equal(t, 42.0, res.Value)
	assert.Equal(t, 1, stub.calls)
}

func TestFormatResultRounding(t *testing.T) {
	assert.Equal(t, "Predicted Energy Consumption: 1.2346 kW (using m)", FormatResult("m", 1.23457))
	assert.Equal(t, "Predicted Energy Consumption: -0.5000 kW (using m)", FormatResult("m", -0.5))
}

func TestPredictSelectionError(t *testing.T) {
	stub := &stubModel{value: 1}
	svc := newService(t, map[string]ml.Predictor{"XGBoost Regressor": stub})

	for _, name := range []string{"", "Random Forest Regressor", "Linear"} {
		_, err := svc.PredictSubmission(context.Background(), validSubmission(name))
		var serr *SelectionError
		require.ErrorAs(t, err, &serr, name)
		assert.Equal(t, name, serr.Name)
		assert.Equal(t, "Please select a valid, available model.", err.Error())

		_, err = svc.Predict(context.Background(), name, make(ml.FeatureVector, 10))
		require.ErrorAs(t, err, &serr)
	}
	assert.Zero(t, stub.calls)
}

func TestSelectionIsCheckedBeforeValidation(t *testing.T) {
	svc := newService(t, nil)
	sub := validSubmission("XGBoost Regressor")
	sub.Datetime = ""

	_, err := svc.PredictSubmission(context.Background(), sub)
	var serr *SelectionError
	assert.ErrorAs(t, err, &serr)
}

func TestPredictValidationError(t *testing.T) {
	stub := &stubModel{value: 1}
	svc := newService(t, map[string]ml.Predictor{"XGBoost Regressor": stub})
	sub := validSubmission("XGBoost Regressor")
	delete(sub.Readings, "Voltage")

	_, err := svc.PredictSubmission(context.Background(), sub)
	var verr *ml.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Voltage", verr.Field)
	assert.Zero(t, stub.calls)
}

func TestPredictWrapsModelFailure(t *testing.T) {
	cause := errors.New("shape mismatch")
	core, logs := observer.New(zap.ErrorLevel)
	svc, err := NewService(modelstore.New(
		modelstore.LoadedModel{Name: "bad", Predictor: &stubModel{err: cause}},
	), zap.New(core))
	require.NoError(t, err)

	_, err = svc.Predict(context.Background(), "bad", make(ml.FeatureVector, 10))
	var perr *PredictionError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "An error occurred: shape mismatch", err.Error())
	assert.Equal(t, 1, logs.Len())
}

func TestPredictRecoversFromPanic(t *testing.T) {
	panicky := ml.PredictorFunc(func([]float64) (float64, error) {
		panic("index out of range")
	})
	svc := newService(t, map[string]ml.Predictor{"LightGBM Regressor": panicky})

	_, err := svc.Predict(context.Background(), "LightGBM Regressor", make(ml.FeatureVector, 10))
	var perr *PredictionError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "predictor panicked")
}

func TestPredictIsIdempotent(t *testing.T) {
	model, err := ml.Artifact{
		Kind:         ml.KindLinear,
		Coefficients: []float64{1, 0.01, 0.5, 0, 0, 0, 0.1, 0, 0, 0},
		Intercept:    0.25,
	}.Build()
	require.NoError(t, err)
	svc := newService(t, map[string]ml.Predictor{"Random Forest Regressor": model})

	sub := validSubmission("Random Forest Regressor")
	a, err := svc.PredictSubmission(context.Background(), sub)
	require.NoError(t, err)
	b, err := svc.PredictSubmission(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPredictCache(t *testing.T) {
	stub := &stubModel{value: 7.5}
	svc := newService(t, map[string]ml.Predictor{"XGBoost Regressor": stub}, WithCache(8))

	first, err := svc.PredictSubmission(context.Background(), validSubmission("XGBoost Regressor"))
	require.NoError(t, err)
	second, err := svc.PredictSubmission(context.Background(), validSubmission("XGBoost Regressor"))
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, stub.calls)

	other := validSubmission("XGBoost Regressor")
	other.Readings["Voltage"] = "241"
	_, err = svc.PredictSubmission(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestPredictRecordsHistory(t *testing.T) {
	now := time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)
	rec := &memoryRecorder{err: errors.New("disk full")}
	svc := newService(t, map[string]ml.Predictor{"XGBoost Regressor": &stubModel{value: 3}},
		WithRecorder(rec), WithClock(func() time.Time { return now }))

	res, err := svc.PredictSubmission(context.Background(), validSubmission("XGBoost Regressor"))
	require.NoError(t, err, "recorder failures are not surfaced")
	assert.Equal(t, 3.0, res.Value)

	require.Len(t, rec.records, 1)
	assert.Equal(t, "XGBoost Regressor", rec.records[0].Model)
	assert.Equal(t, now, rec.records[0].CreatedAt)
	assert.Len(t, rec.records[0].Features, len(ml.FeatureOrder))
}

func TestCachedPredictionsAreRecorded(t *testing.T) {
	stub := &stubModel{value: 2.25}
	rec := &memoryRecorder{}
	svc := newService(t, map[string]ml.Predictor{"XGBoost Regressor": stub}, WithCache(8), WithRecorder(rec))

	for i := 0; i < 3; i++ {
		res, err := svc.PredictSubmission(context.Background(), validSubmission("XGBoost Regressor"))
		require.NoError(t, err)
		assert.Equal(t, i > 0, res.Cached)
	}

	assert.Equal(t, 1, stub.calls)
	require.Len(t, rec.records, 3)
	for _, r := range rec.records {
		assert.Equal(t, 2.25, r.Value)
	}
}

func TestPredictRejectsNonFiniteOutput(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		rec := &memoryRecorder{}
		svc := newService(t, map[string]ml.Predictor{"XGBoost Regressor": &stubModel{value: v}},
			WithCache(8), WithRecorder(rec))

		_, err := svc.PredictSubmission(context.Background(), validSubmission("XGBoost Regressor"))
		var perr *PredictionError
		require.ErrorAs(t, err, &perr)
		assert.ErrorIs(t, err, ErrNonFinite)
		assert.Empty(t, rec.records)
	}
}

func TestPredictMetrics(t *testing.T) {
	metrics, err := monitoring.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	svc := newService(t, map[string]ml.Predictor{"XGBoost Regressor": &stubModel{value: 1}}, WithMetrics(metrics))

	_, err = svc.PredictSubmission(context.Background(), validSubmission("XGBoost Regressor"))
	require.NoError(t, err)
	_, _ = svc.PredictSubmission(context.Background(), validSubmission("missing"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Predictions.WithLabelValues("XGBoost Regressor", monitoring.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Predictions.WithLabelValues("", monitoring.OutcomeSelectionError)))
}

func TestEmptyStoreAlwaysSelectionError(t *testing.T) {
	svc := newService(t, nil)
	assert.Empty(t, svc.Models())
	for _, name := range modelstore.DefaultRegistry().Names() {
		_, err := svc.PredictSubmission(context.Background(), validSubmission(name))
		var serr *SelectionError
		assert.ErrorAs(t, err, &serr)
	}
}
