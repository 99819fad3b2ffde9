// Package catalogcache garde les résolutions coûteuses d'un catalogue
// (nom → id, saison → épisodes) avec une expiration aléatoire par entrée.
package catalogcache

import (
	"math/rand/v2"
	"time"

	"github.com/patrickmn/go-cache"
)

// Policy décrit la durée de vie des entrées: Base + un jitter uniforme dans [0, Jitter].
type Policy struct {
	Base   time.Duration
	Jitter time.Duration
}

var (
	// ShowPolicy: les ids de séries changent rarement.
	ShowPolicy = Policy{Base: 7 * 24 * time.Hour, Jitter: 12 * time.Hour}
	// ListingPolicy: le statut completed/corrected bouge souvent.
	ListingPolicy = Policy{Base: 10 * time.Minute, Jitter: 120 * time.Second}
)

// Entry est une valeur datée. Elle ne sort jamais du package expirée.
type Entry[V any] struct {
	Key       string
	Value     V
	CreatedAt time.Time
	TTL       time.Duration
}

func (e Entry[V]) IsExpired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.TTL
}

// Store est sûr en accès concurrent. Il ne déclenche jamais de fetch:
// le repeuplement est à la charge de l'appelant.
type Store[V any] struct {
	items  *cache.Cache
	policy Policy
	now    func() time.Time
	jitter func(max time.Duration) time.Duration
}

type Option func(*options)

type options struct {
	now    func() time.Time
	jitter func(max time.Duration) time.Duration
}

// WithClock remplace l'horloge (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithJitter remplace le tirage du jitter (tests).
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(o *options) { o.jitter = fn }
}

func New[V any](policy Policy, opts ...Option) *Store[V] {
	o := options{now: time.Now, jitter: randomJitter}
	for _, opt := range opts {
		opt(&o)
	}
	if policy.Jitter < 0 {
		policy.Jitter = 0
	}
	// Le nettoyage go-cache est un filet; la vérité reste Entry.IsExpired.
	cleanup := policy.Base
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &Store[V]{
		items:  cache.New(cache.NoExpiration, cleanup),
		policy: policy,
		now:    o.now,
		jitter: o.jitter,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

func (s *Store[V]) Policy() Policy { return s.policy }

// Put insère (ou remplace) une entrée; le TTL est tiré une seule fois ici.
func (s *Store[V]) Put(key string, value V) Entry[V] {
	j := s.jitter(s.policy.Jitter)
	if j < 0 {
		j = 0
	}
	if j > s.policy.Jitter {
		j = s.policy.Jitter
	}
	e := Entry[V]{Key: key, Value: value, CreatedAt: s.now(), TTL: s.policy.Base + j}
	// Une seule valeur par clé: l'entrée est visible entière ou pas du tout.
	s.items.Set(key, e, e.TTL)
	return e
}

// Lookup renvoie l'entrée si elle existe et n'a pas expiré.
func (s *Store[V]) Lookup(key string) (Entry[V], bool) {
	raw, ok := s.items.Get(key)
	if !ok {
		return Entry[V]{}, false
	}
	e, ok := raw.(Entry[V])
	if !ok {
		return Entry[V]{}, false
	}
	if e.IsExpired(s.now()) {
		return Entry[V]{}, false
	}
	return e, true
}

func (s *Store[V]) Get(key string) (V, bool) {
	e, ok := s.Lookup(key)
	return e.Value, ok
}

func (s *Store[V]) Delete(key string) { s.items.Delete(key) }

func (s *Store[V]) Len() int { return s.items.ItemCount() }

func (s *Store[V]) Flush() { s.items.Flush() }
