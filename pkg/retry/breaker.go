package retry

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/types"
)

// BreakerConfig sets the trip threshold and cooldown for named resources.
type BreakerConfig struct {
	// Threshold is the consecutive-failure count that opens the circuit.
	Threshold uint32
	// Cooldown is how long the circuit stays open before half-open.
	Cooldown time.Duration
}

// DefaultBreaker matches the watchers' reference policy.
var DefaultBreaker = BreakerConfig{Threshold: 5, Cooldown: 60 * time.Second}

// Breakers is a per-resource circuit breaker registry. Breakers are
// created on first use and live for the process; state is rebuilt from
// empty on restart by design.
type Breakers struct {
	cfg BreakerConfig

	mu sync.Mutex
	m  map[string]*gobreaker.CircuitBreaker
}

// NewBreakers creates a registry with one shared config.
func NewBreakers(cfg BreakerConfig) *Breakers {
	if cfg.Threshold == 0 {
		cfg = DefaultBreaker
	}
	return &Breakers{cfg: cfg, m: make(map[string]*gobreaker.CircuitBreaker)}
}

// Do runs fn behind the named breaker. A rejected call (circuit open) is
// reported as a transient error so callers defer rather than fail hard.
// Policy and integrity errors do not count as breaker failures: the
// resource is fine, the request is not.
func (b *Breakers) Do(name string, fn func() error) error {
	cb := b.get(name)
	err := unwrapSidestep(cb.Execute(func() (any, error) {
		if err := fn(); err != nil {
			switch types.KindOf(err) {
			case types.KindPolicy, types.KindIntegrity:
				return sidestep{err}, nil
			}
			return nil, err
		}
		return nil, nil
	}))
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.Transientf("circuit %s open: %v", name, err)
	}
	return err
}

// State returns the named breaker's current state string.
func (b *Breakers) State(name string) string {
	return b.get(name).State().String()
}

func (b *Breakers) get(name string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.m[name]; ok {
		return cb
	}
	threshold := b.cfg.Threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // single probe in half-open
		Timeout:     b.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger := log.WithComponent("breaker")
			logger.Warn().
				Str("resource", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit state change")
		},
	})
	b.m[name] = cb
	return cb
}

// gobreaker counts every error returned from Execute as a failure.
// sidestep smuggles policy and integrity errors through the success path
// so they reach the caller without tripping the breaker.
type sidestep struct{ err error }

// Unwrap recovers a sidestepped error after Execute.
func unwrapSidestep(v any, err error) error {
	if err != nil {
		return err
	}
	if s, ok := v.(sidestep); ok {
		return s.err
	}
	return nil
}
