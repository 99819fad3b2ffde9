package app

import (
	"context"
	"sync"
)

// DynamicLimiter plafonne les requêtes simultanées vers les catalogues.
// Le plafond suit le réglage maxConcurrentRequests et se modifie à chaud;
// il est partagé par tous les catalogues et satisfait session.Limiter.
type DynamicLimiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	waiting  int
	wake     chan struct{}
}

// LimiterStats est un instantané, exposé par /health.
type LimiterStats struct {
	Limit    int `json:"limit"`
	InFlight int `json:"inFlight"`
	Waiting  int `json:"waiting"`
}

func NewDynamicLimiter(limit int) *DynamicLimiter {
	return &DynamicLimiter{limit: max(limit, 1), wake: make(chan struct{})}
}

func (l *DynamicLimiter) Limit() int {
	return l.Stats().Limit
}

func (l *DynamicLimiter) InFlight() int {
	return l.Stats().InFlight
}

func (l *DynamicLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStats{Limit: l.limit, InFlight: l.inFlight, Waiting: l.waiting}
}

// SetLimit change le plafond; les requêtes déjà lancées ne sont pas interrompues.
// Une valeur <= 0 revient à 1.
func (l *DynamicLimiter) SetLimit(limit int) {
	limit = max(limit, 1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit != limit {
		l.limit = limit
		l.wakeAllLocked()
	}
}

// Acquire attend une place libre ou l'annulation de ctx.
func (l *DynamicLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.inFlight >= l.limit {
		wake := l.wake
		l.waiting++
		l.mu.Unlock()

		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-wake:
		}

		l.mu.Lock()
		l.waiting--
		if err != nil {
			return err
		}
	}
	l.inFlight++
	return nil
}

func (l *DynamicLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.wakeAllLocked()
}

// Do exécute fn en tenant une place.
func (l *DynamicLimiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// wakeAllLocked ferme le canal courant (réveil de tous les waiters) et en crée un neuf.
func (l *DynamicLimiter) wakeAllLocked() {
	close(l.wake)
	l.wake = make(chan struct{})
}
