package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Condition summarises a provider's circuit for health reporting.
type Condition int

// Provider conditions, from best to worst.
const (
	ConditionUp Condition = iota
	ConditionDegraded
	ConditionDown
)

func (c Condition) String() string {
	switch c {
	case ConditionDegraded:
		return "degraded"
	case ConditionDown:
		return "down"
	default:
		return "up"
	}
}

// ProviderHealth is a point-in-time view of one provider.
type ProviderHealth struct {
	Name         string
	CircuitState gobreaker.State

	// Counts are the breaker's counts for the current window.
	Counts gobreaker.Counts

	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string

	// OpenedAt is when the circuit last opened; nil if it never has.
	OpenedAt *time.Time

	// StateChanges counts circuit transitions since start.
	StateChanges int
}

// Condition maps the circuit state: closed is up, half-open is degraded, open is down.
func (h ProviderHealth) Condition() Condition {
	switch h.CircuitState {
	case gobreaker.StateOpen:
		return ConditionDown
	case gobreaker.StateHalfOpen:
		return ConditionDegraded
	default:
		return ConditionUp
	}
}

// Registry tracks provider clients and the outcome of their requests. Clients
// register themselves when created with ClientConfig.Registry set.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*providerEntry
	now       func() time.Time
}

type providerEntry struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
	openedAt      *time.Time
	stateChanges  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*providerEntry),
		now:       time.Now,
	}
}

func (r *Registry) register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &providerEntry{client: client}
}

func (r *Registry) recordOutcome(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return
	}
	now := r.now()
	if err == nil {
		p.lastSuccessAt = &now
		return
	}
	p.lastFailureAt = &now
	p.lastError = err.Error()
}

func (r *Registry) recordStateChange(name string, to gobreaker.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return
	}
	p.stateChanges++
	if to == gobreaker.StateOpen {
		now := r.now()
		p.openedAt = &now
	}
}

// Provider returns the health of a named provider.
func (r *Registry) Provider(name string) (ProviderHealth, bool) {
	r.mu.RLock()
	p, ok := r.providers[name]
	var snap entrySnapshot
	if ok {
		snap = p.snapshot(name)
	}
	r.mu.RUnlock()

	if !ok {
		return ProviderHealth{}, false
	}
	return snap.health(), true
}

// Snapshot returns the health of every provider, ordered by name.
func (r *Registry) Snapshot() []ProviderHealth {
	r.mu.RLock()
	snaps := make([]entrySnapshot, 0, len(r.providers))
	for name, p := range r.providers {
		snaps = append(snaps, p.snapshot(name))
	}
	r.mu.RUnlock()

	health := make([]ProviderHealth, 0, len(snaps))
	for _, s := range snaps {
		health = append(health, s.health())
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return health
}

// Names returns the registered provider names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenCircuits returns the providers whose circuit is open, in order.
func (r *Registry) OpenCircuits() []string {
	var open []string
	for _, h := range r.Snapshot() {
		if h.Condition() == ConditionDown {
			open = append(open, h.Name)
		}
	}
	return open
}

// entrySnapshot copies an entry under the registry lock. Breaker state is read
// afterwards because the breaker calls back into the registry on transitions
// while holding its own lock.
type entrySnapshot struct {
	client *Client
	base   ProviderHealth
}

func (p *providerEntry) snapshot(name string) entrySnapshot {
	base := ProviderHealth{
		Name:          name,
		LastSuccessAt: p.lastSuccessAt,
		LastFailureAt: p.lastFailureAt,
		LastError:     p.lastError,
		OpenedAt:      p.openedAt,
		StateChanges:  p.stateChanges,
	}
	return entrySnapshot{client: p.client, base: base}
}

func (s entrySnapshot) health() ProviderHealth {
	h := s.base
	h.CircuitState = s.client.CircuitBreakerState()
	h.Counts = s.client.CircuitBreakerCounts()
	return h
}
