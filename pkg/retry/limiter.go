package retry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/burrowhq/burrow/pkg/types"
)

// RatePolicy is a token bucket: Events tokens refilled evenly over Per,
// with burst capacity Events.
type RatePolicy struct {
	Events int
	Per    time.Duration
}

// DefaultChannels carries the handbook's configured channel limits.
var DefaultChannels = map[types.Channel]RatePolicy{
	types.ChannelEmail:      {Events: 10, Per: time.Hour},
	types.ChannelSocialPost: {Events: 3, Per: time.Hour},
	types.ChannelPayment:    {Events: 3, Per: 24 * time.Hour},
}

// Limiters is a per-channel token-bucket registry driven by the shared
// clock. Buckets start full and are rebuilt from empty process state on
// restart; cross-process discipline relies on adapter idempotency.
type Limiters struct {
	clock  Clock
	config map[types.Channel]RatePolicy

	mu sync.Mutex
	m  map[types.Channel]*rate.Limiter
}

// NewLimiters creates a registry. A nil config uses DefaultChannels.
func NewLimiters(clock Clock, config map[types.Channel]RatePolicy) *Limiters {
	if config == nil {
		config = DefaultChannels
	}
	return &Limiters{clock: clock, config: config, m: make(map[types.Channel]*rate.Limiter)}
}

// Allow consumes one token from the channel's bucket if available.
// Unconfigured channels are unlimited.
func (l *Limiters) Allow(ch types.Channel) bool {
	lim := l.get(ch)
	if lim == nil {
		return true
	}
	return lim.AllowN(l.clock.Now(), 1)
}

// Wait blocks (via the shared clock) until a token is available or the
// context is cancelled.
func (l *Limiters) Wait(ctx context.Context, ch types.Channel) error {
	lim := l.get(ch)
	if lim == nil {
		return ctx.Err()
	}
	res := lim.ReserveN(l.clock.Now(), 1)
	if !res.OK() {
		return types.Policyf("rate limit on channel %s cannot be satisfied", ch)
	}
	delay := res.DelayFrom(l.clock.Now())
	if err := l.clock.Sleep(ctx, delay); err != nil {
		res.CancelAt(l.clock.Now())
		return err
	}
	return nil
}

func (l *Limiters) get(ch types.Channel) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.m[ch]; ok {
		return lim
	}
	policy, ok := l.config[ch]
	if !ok {
		return nil
	}
	lim := rate.NewLimiter(rate.Limit(float64(policy.Events)/policy.Per.Seconds()), policy.Events)
	l.m[ch] = lim
	return lim
}
