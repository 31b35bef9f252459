package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/burrowhq/burrow/pkg/events"
)

// VaultEvents counts in-process vault transitions by event type.
var VaultEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "burrow_vault_events_total",
		Help: "In-process vault transition events by type",
	},
	[]string{"type"},
)

func init() {
	prometheus.MustRegister(VaultEvents)
}

// ObserveBroker mirrors the broker's event stream into VaultEvents. The
// returned stop function unsubscribes and waits for the pump to drain.
func ObserveBroker(b *events.Broker) (stop func()) {
	sub := b.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub {
			VaultEvents.WithLabelValues(string(ev.Type)).Inc()
		}
	}()
	return func() {
		b.Unsubscribe(sub)
		<-done
	}
}
