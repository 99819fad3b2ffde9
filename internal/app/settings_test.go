package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/subseek/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/ports"
)

type memSettingsRepo struct {
	mu sync.Mutex
	s  domain.Settings
}

func (r *memSettingsRepo) Get(ctx context.Context) (domain.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s, nil
}

func (r *memSettingsRepo) Put(ctx context.Context, s domain.Settings) (domain.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = s
	return s, nil
}

func TestSettingsService_PutKeepsStoredPassword(t *testing.T) {
	repo := &memSettingsRepo{s: domain.Settings{CatalogUsername: "alice", CatalogPassword: "s3cret"}}
	svc := NewSettingsService(repo, nil)

	for _, pw := range []string{"", redactedPassword} {
		updated, err := svc.Put(context.Background(), domain.Settings{CatalogUsername: " alice ", CatalogPassword: pw})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if updated.CatalogPassword != "s3cret" || updated.CatalogUsername != "alice" {
			t.Fatalf("Put(%q): %+v", pw, updated)
		}
		if updated.MaxConcurrentRequests != domain.DefaultSettings().MaxConcurrentRequests {
			t.Fatalf("defaults not applied: %+v", updated)
		}
	}

	creds, err := svc.Credentials(context.Background())
	if err != nil || creds.Username != "alice" || creds.Password != "s3cret" {
		t.Fatalf("Credentials: %+v (%v)", creds, err)
	}
}

func TestSettingsService_PutPublishesRedactedEvent(t *testing.T) {
	bus := memorybus.New()
	ch, cancel := bus.SubscribeTopics(ports.TopicSettingsUpdated)
	defer cancel()

	svc := NewSettingsService(&memSettingsRepo{}, bus)
	if _, err := svc.Put(context.Background(), domain.Settings{CatalogUsername: "bob", CatalogPassword: "pw"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	select {
	case evt := <-ch:
		if strings.Contains(string(evt.Payload), `"pw"`) {
			t.Fatalf("password leaked in event: %s", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("no settings.updated event")
	}
}
