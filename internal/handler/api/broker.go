package api

import (
	"sync"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/service/metrics"
)

// Broker fans decision events out to stream subscribers. Subscribers
// registered under "" receive every train.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan models.DecisionEvent]struct{} // train id -> channels
}

func NewBroker() *Broker {
	metrics.Register()
	return &Broker{subs: map[string]map[chan models.DecisionEvent]struct{}{}}
}

func (b *Broker) Subscribe(trainID string) chan models.DecisionEvent {
	ch := make(chan models.DecisionEvent, 8)
	b.mu.Lock()
	if b.subs[trainID] == nil {
		b.subs[trainID] = map[chan models.DecisionEvent]struct{}{}
	}
	b.subs[trainID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(trainID string, ch chan models.DecisionEvent) {
	b.mu.Lock()
	if m := b.subs[trainID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, trainID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (b *Broker) Publish(evt models.DecisionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send(b.subs[evt.Decision.TrainID], evt)
	if evt.Decision.TrainID != "" {
		b.send(b.subs[""], evt)
	}
}

func (b *Broker) send(m map[chan models.DecisionEvent]struct{}, evt models.DecisionEvent) {
	for ch := range m {
		select {
		case ch <- evt:
		default:
			metrics.StreamDropped.Inc()
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.subs {
		n += len(m)
	}
	return n
}
