package ml

import "fmt"

// TreeEnsemble sums (gradient boosting) or averages (random forest) the
// outputs of its trees.
type TreeEnsemble struct {
	kind        Kind
	baseScore   float64
	trees       []*RegressionTree
	numFeatures int
}

func (te *TreeEnsemble) Predict(features []float64) (float64, error) {
	if len(features) != te.numFeatures {
		return 0, fmt.Errorf("%w: expected %d features, got %d", ErrFeatureCount, te.numFeatures, len(features))
	}
	total := 0.0
	for i, tree := range te.trees {
		v, err := tree.Predict(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		total += v
	}
	if te.kind == KindRandomForest {
		return total / float64(len(te.trees)), nil
	}
	return te.baseScore + total, nil
}

func (te *TreeEnsemble) Kind() Kind {
	return te.kind
}

func (te *TreeEnsemble) NumTrees() int {
	return len(te.trees)
}

type LinearModel struct {
	coefficients []float64
	intercept    float64
}

func (lm *LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(lm.coefficients) {
		return 0, fmt.Errorf("%w: expected %d features, got %d", ErrFeatureCount, len(lm.coefficients), len(features))
	}
	y := lm.intercept
	for i, c := range lm.coefficients {
		y += c * features[i]
	}
	return y, nil
}
