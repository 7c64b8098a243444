package corpus

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*TestModel)
)

// Register adds a model to the corpus. Registered models are shared
// and must be treated as read-only; use Clone before mutating.
func Register(m *TestModel) {
	if m.Name == "" {
		panic("corpus: model has no name")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[m.Name]; ok {
		panic("corpus: model already registered: " + m.Name)
	}

	registry[m.Name] = m
}

// Get returns the model registered under name. On a miss the error
// names the closest registered model.
func Get(name string) (*TestModel, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if m, ok := registry[name]; ok {
		return m, nil
	}

	var closest string
	score := math.MaxInt
	for candidate := range registry {
		if s := levenshtein.ComputeDistance(name, candidate); s < score {
			score = s
			closest = candidate
		}
	}

	if closest != "" && score <= len(name)/2+1 {
		return nil, fmt.Errorf("corpus: unknown model %q, did you mean %q?", name, closest)
	}
	return nil, fmt.Errorf("corpus: unknown model %q", name)
}

// Names lists registered model names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered models sorted by name.
func All() []*TestModel {
	registryMu.RLock()
	defer registryMu.RUnlock()

	models := make([]*TestModel, 0, len(registry))
	for _, m := range registry {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}
