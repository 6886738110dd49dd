package realtime

import (
	"sync"

	"github.com/zxtrader/pricing-sub000/internal/models"
)

// PairRegistry is the set of pairs some subscriber has asked about. The sync
// job refreshes their aggregated price.
type PairRegistry struct {
	mu    sync.RWMutex
	seen  map[models.Pair]struct{}
	pairs []models.Pair
}

func NewPairRegistry() *PairRegistry {
	return &PairRegistry{seen: make(map[models.Pair]struct{})}
}

// Add registers pairs, ignoring ones already present.
func (r *PairRegistry) Add(pairs ...models.Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range pairs {
		if _, ok := r.seen[p]; ok {
			continue
		}
		r.seen[p] = struct{}{}
		r.pairs = append(r.pairs, p)
	}
}

// List returns the registered pairs in registration order.
func (r *PairRegistry) List() []models.Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Pair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

func (r *PairRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pairs)
}
