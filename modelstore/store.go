package modelstore

import "powercast/ml"

// LoadedModel pairs a display name with its predictor.
type LoadedModel struct {
	Name      string
	Predictor ml.Predictor
}

// Store is the immutable set of models that loaded successfully. It is safe
// for concurrent readers and never changes after construction.
type Store struct {
	names  []string
	models map[string]ml.Predictor
}

// New builds a store from models in order. Later duplicates are ignored.
func New(models ...LoadedModel) *Store {
	s := &Store{models: make(map[string]ml.Predictor, len(models))}
	for _, m := range models {
		if _, dup := s.models[m.Name]; dup || m.Predictor == nil {
			continue
		}
		s.names = append(s.names, m.Name)
		s.models[m.Name] = m.Predictor
	}
	return s
}

func (s *Store) Get(name string) (ml.Predictor, bool) {
	p, ok := s.models[name]
	return p, ok
}

// Names returns the available models in registry order.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Store) Len() int {
	return len(s.names)
}
