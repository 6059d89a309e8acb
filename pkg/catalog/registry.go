package catalog

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

/*
Registry keeps the agent cards known to a catalog, keyed by agent name.
With a TTL set, entries that are not re-registered in time drop out of
the listing, so crashed agents disappear without explicit deregistration.
*/
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
	ttl     time.Duration
}

type registration struct {
	card a2a.AgentCard
	seen time.Time
}

// NewRegistry builds a registry whose entries never expire.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registration),
	}
}

// WithTTL sets how long a registration stays listed without a refresh.
func (registry *Registry) WithTTL(ttl time.Duration) *Registry {
	registry.ttl = ttl
	return registry
}

// AddAgent registers a card, refreshing the TTL if it was already known.
func (registry *Registry) AddAgent(card a2a.AgentCard) {
	log.Info("adding agent to catalog", "name", card.Name)

	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.entries[card.Name] = registration{card: card, seen: time.Now()}
}

// GetAgent looks up a card by name.  Expired entries report as missing.
func (registry *Registry) GetAgent(name string) (a2a.AgentCard, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	reg, ok := registry.entries[name]

	if !ok || !registry.alive(reg, time.Now()) {
		return a2a.AgentCard{}, false
	}

	return reg.card, true
}

// GetAgents returns every live card, in no particular order.
func (registry *Registry) GetAgents() []a2a.AgentCard {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	now := time.Now()
	agents := make([]a2a.AgentCard, 0, len(registry.entries))

	for _, reg := range registry.entries {
		if registry.alive(reg, now) {
			agents = append(agents, reg.card)
		}
	}

	return agents
}

// RemoveAgent drops a card from the catalog.
func (registry *Registry) RemoveAgent(name string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	delete(registry.entries, name)
}

// Cleanup deletes expired entries and reports how many were removed.
// Reads already skip expired entries, so this only reclaims memory.
func (registry *Registry) Cleanup() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	now := time.Now()
	removed := 0

	for name, reg := range registry.entries {
		if !registry.alive(reg, now) {
			delete(registry.entries, name)
			removed++
		}
	}

	return removed
}

func (registry *Registry) alive(reg registration, now time.Time) bool {
	return registry.ttl <= 0 || now.Sub(reg.seen) < registry.ttl
}
