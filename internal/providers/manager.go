package providers

import (
	"sync"

	"github.com/zxtrader/pricing-sub000/internal/types"
)

// ProviderManager is the registry of price loaders keyed by source id
type ProviderManager struct {
	mu        sync.RWMutex
	providers map[string]types.PriceLoader
	order     []string
}

// NewProviderManager creates an empty registry
func NewProviderManager() *ProviderManager {
	return &ProviderManager{
		providers: make(map[string]types.PriceLoader),
	}
}

// AddProvider registers loader under its source id, replacing any previous one
func (pm *ProviderManager) AddProvider(loader types.PriceLoader) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	id := loader.SourceID()
	if _, exists := pm.providers[id]; !exists {
		pm.order = append(pm.order, id)
	}
	pm.providers[id] = loader
}

// GetProvider returns the loader of a source
func (pm *ProviderManager) GetProvider(sourceID string) (types.PriceLoader, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	provider, exists := pm.providers[sourceID]
	return provider, exists
}

// SourceIDs returns the registered source ids in registration order
func (pm *ProviderManager) SourceIDs() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	ids := make([]string, len(pm.order))
	copy(ids, pm.order)
	return ids
}
