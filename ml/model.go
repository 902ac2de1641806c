package ml

// Predictor is a loaded regression model. Implementations must be safe for
// concurrent use once constructed.
type Predictor interface {
	Predict(features []float64) (float64, error)
}

// PredictorFunc adapts a plain function to the Predictor interface.
type PredictorFunc func(features []float64) (float64, error)

func (f PredictorFunc) Predict(features []float64) (float64, error) {
	return f(features)
}
