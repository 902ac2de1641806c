package ml

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Kind string

const (
	KindGradientBoosting Kind = "gradient_boosting"
	KindRandomForest     Kind = "random_forest"
	KindLinear           Kind = "linear"
)

var (
	ErrUnknownKind  = errors.New("unknown model kind")
	ErrEmptyModel   = errors.New("model has no parameters")
	ErrFeatureCount = errors.New("feature count mismatch")
)

// Artifact is the on-disk form of a predictor. Tree nodes are stored in
// pre-order, so every child index is greater than its parent's.
type Artifact struct {
	Kind         Kind         `json:"kind"`
	FeatureNames []string     `json:"feature_names,omitempty"`
	NumFeatures  int          `json:"num_features,omitempty"`
	BaseScore    float64      `json:"base_score,omitempty"`
	Trees        [][]TreeNode `json:"trees,omitempty"`
	Coefficients []float64    `json:"coefficients,omitempty"`
	Intercept    float64      `json:"intercept,omitempty"`
}

// LoadArtifact reads and decodes the artifact at path. Paths ending in .gz
// are gunzipped first.
func LoadArtifact(path string) (Predictor, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("open gzip artifact: %w", err)
		}
		defer zr.Close()
		if payload, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("read gzip artifact: %w", err)
		}
	}
	return DecodeArtifact(payload)
}

func DecodeArtifact(payload []byte) (Predictor, error) {
	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return artifact.Build()
}

// Build validates the artifact and returns the matching predictor.
func (a Artifact) Build() (Predictor, error) {
	n := a.featureCount()
	switch a.Kind {
	case KindGradientBoosting, KindRandomForest:
		if len(a.Trees) == 0 {
			return nil, ErrEmptyModel
		}
		trees := make([]*RegressionTree, len(a.Trees))
		for i, nodes := range a.Trees {
			tree, err := NewRegressionTree(nodes, n)
			if err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
		}
		return &TreeEnsemble{
			kind:        a.Kind,
			baseScore:   a.BaseScore,
			trees:       trees,
			numFeatures: n,
		}, nil
	case KindLinear:
		if len(a.Coefficients) == 0 {
			return nil, ErrEmptyModel
		}
		if len(a.Coefficients) != n {
			return nil, fmt.Errorf("%w: %d coefficients for %d features", ErrFeatureCount, len(a.Coefficients), n)
		}
		return &LinearModel{
			coefficients: append([]float64(nil), a.Coefficients...),
			intercept:    a.Intercept,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
}

// WriteArtifact persists a as JSON at path, gzip-compressed for .gz paths.
func WriteArtifact(path string, a Artifact) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		payload = buf.Bytes()
	}
	return os.WriteFile(path, payload, 0o600)
}

func (a Artifact) featureCount() int {
	switch {
	case a.NumFeatures > 0:
		return a.NumFeatures
	case len(a.FeatureNames) > 0:
		return len(a.FeatureNames)
	case a.Kind == KindLinear && len(a.Coefficients) > 0:
		return len(a.Coefficients)
	default:
		return len(FeatureOrder)
	}
}
