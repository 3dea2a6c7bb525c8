package tapfix

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// scenario pairs a registry with the lock serialising operations on it.
type scenario struct {
	mu  sync.Mutex
	reg *Registry
}

// Scenarios keeps one Registry per running test scenario.
//
// Scenarios that aren't touched for the TTL are discarded, so a runner which
// dies mid-scenario doesn't leak its registry. Safe for concurrent use.
type Scenarios struct {
	cache   *gocache.Cache
	regOpts []RegistryOption
	log     *zap.Logger
}

// NewScenarios returns an empty store. ttl is how long an idle scenario
// lives, cleanup how often expired ones are purged. regOpts apply to every
// registry the store creates.
func NewScenarios(ttl, cleanup time.Duration, log *zap.Logger, regOpts ...RegistryOption) *Scenarios {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scenarios{
		cache:   gocache.New(ttl, cleanup),
		regOpts: regOpts,
		log:     log,
	}
	s.cache.OnEvicted(func(id string, _ interface{}) {
		s.log.Info("Scenario discarded", zap.String("scenario", id))
	})
	return s
}

// Begin creates a scenario with an empty registry and returns its ID.
func (s *Scenarios) Begin() (string, *Registry) {
	id := NewID()
	sc := &scenario{reg: NewRegistry(s.regOpts...)}
	s.cache.SetDefault(id, sc)
	s.log.Info("Scenario started", zap.String("scenario", id))
	return id, sc.reg
}

// Get returns the registry of scenario id and restarts its TTL.
func (s *Scenarios) Get(id string) (*Registry, error) {
	sc, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return sc.reg, nil
}

// With runs fn against the registry of scenario id while holding the
// scenario's lock.
func (s *Scenarios) With(id string, fn func(*Registry) error) error {
	sc, err := s.get(id)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return fn(sc.reg)
}

// End discards scenario id.
func (s *Scenarios) End(id string) error {
	if _, ok := s.cache.Get(id); !ok {
		return fmt.Errorf("%w: %q", ErrScenarioNotFound, id)
	}
	s.cache.Delete(id)
	return nil
}

// Len returns the number of live scenarios, including expired ones not yet
// purged.
func (s *Scenarios) Len() int {
	return s.cache.ItemCount()
}

func (s *Scenarios) get(id string) (*scenario, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrScenarioNotFound, id)
	}
	sc := v.(*scenario)
	// Touching a scenario keeps it alive. Replace fails once End has removed
	// it, so a discarded scenario is never stored again.
	if err := s.cache.Replace(id, sc, gocache.DefaultExpiration); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrScenarioNotFound, id)
	}
	return sc, nil
}
