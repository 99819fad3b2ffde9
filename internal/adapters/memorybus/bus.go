// Package memorybus est un bus d'événements en mémoire, best-effort:
// un abonné trop lent perd des événements plutôt que de bloquer l'émetteur.
package memorybus

import (
	"encoding/json"
	"sync"

	"github.com/Guilhem-Bonnet/subseek/internal/ports"
)

const subscriberBuffer = 64

type subscriber struct {
	ch     chan ports.Event
	topics map[string]struct{} // vide = tous les topics
}

func (s subscriber) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

type Bus struct {
	mu     sync.Mutex
	subs   map[chan ports.Event]subscriber
	closed bool
}

func New() *Bus {
	return &Bus{subs: make(map[chan ports.Event]subscriber)}
}

func (b *Bus) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	evt := ports.Event{Topic: topic, Payload: payload}
	for ch, sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case ch <- evt:
		default:
			// abonné lent
		}
	}
}

// PublishJSON sérialise v; un échec d'encodage est ignoré.
func (b *Bus) PublishJSON(topic string, v any) {
	p, err := json.Marshal(v)
	if err != nil {
		return
	}
	b.Publish(topic, p)
}

func (b *Bus) Subscribe() (<-chan ports.Event, func()) {
	return b.SubscribeTopics()
}

// SubscribeTopics ne reçoit que les topics listés (tous si aucun).
func (b *Bus) SubscribeTopics(topics ...string) (<-chan ports.Event, func()) {
	ch := make(chan ports.Event, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	sub := subscriber{ch: ch, topics: make(map[string]struct{}, len(topics))}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}
	b.subs[ch] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Close ferme tous les abonnements; les Publish suivants sont ignorés.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
