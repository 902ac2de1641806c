// Package modelstore loads the registered prediction models once at startup
// and serves them read-only for the rest of the process.
package modelstore

import (
	"errors"
	"fmt"
)

// Entry maps a display name to its local artifact and optional remote key.
type Entry struct {
	Name      string
	Path      string
	RemoteKey string
}

// Registry is ordered; the order is the display order.
type Registry []Entry

func DefaultRegistry() Registry {
	return Registry{
		{Name: "XGBoost Regressor", Path: "models/xgb_model.json"},
		{Name: "Random Forest Regressor", Path: "models/rf_model.json"},
		{Name: "LightGBM Regressor", Path: "models/lgbm_model.json"},
	}
}

func (r Registry) Validate() error {
	seen := make(map[string]struct{}, len(r))
	for i, e := range r {
		if e.Name == "" {
			return fmt.Errorf("model %d: name is required", i)
		}
		if e.Path == "" {
			return fmt.Errorf("model %q: path is required", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("model %q: %w", e.Name, ErrDuplicateName)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}

func (r Registry) Names() []string {
	names := make([]string, len(r))
	for i, e := range r {
		names[i] = e.Name
	}
	return names
}

var ErrDuplicateName = errors.New("duplicate model name")
