package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/subseek/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/ports"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testMarkers = []Marker{
	{Text: "doesn't exist", Reason: ReasonAccountMissing},
	{Text: "Wrong password", Reason: ReasonWrongPassword},
}

func newManager(t *testing.T, baseURL string, c *clock) *Manager {
	t.Helper()
	m, err := New(Config{
		BaseURL:      baseURL,
		LoginPath:    "/dologin.php",
		UserAgent:    "subseek/test",
		Cooldown:     time.Minute,
		Markers:      testMarkers,
		UserCookie:   "wikisubtitlesuser",
		SecretCookie: "wikisubtitlespass",
		RetryDelay:   time.Millisecond,
		Now:          c.Now,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.SetCredentials(domain.Credentials{Username: "alice", Password: "s3cret"})
	return m
}

func loginServer(t *testing.T, hits *atomic.Int32, body func(n int32) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dologin.php" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		n := hits.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("username") == "" || r.PostForm.Get("password") == "" || r.PostForm.Get("Submit") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		status, text := body(n)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(text))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsureSession_WrongPasswordKeepsTimestamp(t *testing.T) {
	var hits atomic.Int32
	var wrong atomic.Bool
	srv := loginServer(t, &hits, func(int32) (int, string) {
		if wrong.Load() {
			return http.StatusOK, "<html><b>Wrong password</b></html>"
		}
		return http.StatusOK, "<html>Welcome</html>"
	})
	c := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newManager(t, srv.URL, c)

	if err := m.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	before := m.LastLogin()

	wrong.Store(true)
	c.Advance(2 * time.Minute)
	err := m.EnsureSession(context.Background())
	var af *AuthFailure
	if !errors.As(err, &af) {
		t.Fatalf("want AuthFailure, got %v", err)
	}
	if af.Reason != ReasonWrongPassword {
		t.Fatalf("reason: want %q, got %q", ReasonWrongPassword, af.Reason)
	}
	if !m.LastLogin().Equal(before) {
		t.Fatalf("last login changed: %s -> %s", before, m.LastLogin())
	}
	if hits.Load() != 2 {
		t.Fatalf("auth failures must not be retried: %d login calls", hits.Load())
	}
}

func TestEnsureSession_AccountMissing(t *testing.T) {
	var hits atomic.Int32
	srv := loginServer(t, &hits, func(int32) (int, string) {
		return http.StatusOK, "User <b>alice</b> doesn't exist"
	})
	m := newManager(t, srv.URL, &clock{now: time.Now()})

	err := m.EnsureSession(context.Background())
	var af *AuthFailure
	if !errors.As(err, &af) || af.Reason != ReasonAccountMissing {
		t.Fatalf("want account missing, got %v", err)
	}
	if !m.LastLogin().IsZero() {
		t.Fatalf("session must stay invalid")
	}
}

func TestEnsureSession_Non200IsTerminal(t *testing.T) {
	var hits atomic.Int32
	srv := loginServer(t, &hits, func(int32) (int, string) { return http.StatusForbidden, "nope" })
	m := newManager(t, srv.URL, &clock{now: time.Now()})

	err := m.EnsureSession(context.Background())
	var af *AuthFailure
	if !errors.As(err, &af) || af.Status != http.StatusForbidden {
		t.Fatalf("want AuthFailure(403), got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("login calls: want 1, got %d", hits.Load())
	}
}

func TestEnsureSession_ServerErrorIsAuthFailure(t *testing.T) {
	var hits atomic.Int32
	srv := loginServer(t, &hits, func(int32) (int, string) {
		return http.StatusServiceUnavailable, "busy"
	})
	m := newManager(t, srv.URL, &clock{now: time.Now()})

	err := m.EnsureSession(context.Background())
	var af *AuthFailure
	if !errors.As(err, &af) {
		t.Fatalf("want *AuthFailure, got %v", err)
	}
	if af.Reason != ReasonUnexpectedStatus || af.Status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected failure: %+v", af)
	}
	if hits.Load() != 1 {
		t.Fatalf("login calls: want 1, got %d", hits.Load())
	}
	if !m.LastLogin().IsZero() {
		t.Fatalf("failed login must not start the cooldown")
	}
}

func TestEnsureSession_RetriesDroppedConnection(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			// Connexion coupée sans réponse.
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	m := newManager(t, srv.URL, &clock{now: time.Now()})

	if err := m.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("login calls: want 2, got %d", hits.Load())
	}
}

func TestEnsureSession_Cooldown(t *testing.T) {
	var hits atomic.Int32
	srv := loginServer(t, &hits, func(int32) (int, string) { return http.StatusOK, "ok" })
	c := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newManager(t, srv.URL, c)

	for i := 0; i < 3; i++ {
		if err := m.EnsureSession(context.Background()); err != nil {
			t.Fatalf("EnsureSession: %v", err)
		}
		c.Advance(10 * time.Second)
	}
	if hits.Load() != 1 {
		t.Fatalf("within cooldown: want 1 login, got %d", hits.Load())
	}

	c.Advance(time.Minute)
	if err := m.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("after cooldown: want 2 logins, got %d", hits.Load())
	}
}

func TestEnsureSession_ConcurrentCallersLogInOnce(t *testing.T) {
	var hits atomic.Int32
	srv := loginServer(t, &hits, func(int32) (int, string) {
		time.Sleep(20 * time.Millisecond)
		return http.StatusOK, "ok"
	})
	m := newManager(t, srv.URL, &clock{now: time.Now()})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.EnsureSession(context.Background()); err != nil {
				t.Errorf("EnsureSession: %v", err)
			}
		}()
	}
	wg.Wait()
	if hits.Load() != 1 {
		t.Fatalf("want exactly 1 login, got %d", hits.Load())
	}
	if m.LastLogin().IsZero() {
		t.Fatalf("expected a valid session")
	}
}

func TestEnsureSession_CanceledDuringLogin(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	m := newManager(t, srv.URL, &clock{now: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.EnsureSession(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if !m.LastLogin().IsZero() {
		t.Fatalf("canceled login must not mark the session valid")
	}
}

func TestEnsureSession_NoCredentials(t *testing.T) {
	m := newManager(t, "http://127.0.0.1:1", &clock{now: time.Now()})
	m.SetCredentials(domain.Credentials{})
	var af *AuthFailure
	if err := m.EnsureSession(context.Background()); !errors.As(err, &af) || af.Reason != ReasonNoCredentials {
		t.Fatalf("want missing credentials, got %v", err)
	}
}

func TestAuthenticatedRequest_SecretFollowsRotation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if c, err := r.Cookie("wikisubtitlesuser"); err == nil {
			w.Header().Set("X-User", c.Value)
		}
		if c, err := r.Cookie("wikisubtitlespass"); err == nil {
			w.Header().Set("X-Secret", c.Value)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	m := newManager(t, srv.URL, &clock{now: time.Now()})

	resp, err := m.AuthenticatedRequest(context.Background(), http.MethodGet, "/original/1/0", nil)
	if err != nil {
		t.Fatalf("AuthenticatedRequest: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if resp.Header.Get("X-User") != "alice" || resp.Header.Get("X-Secret") != DeriveSecret("s3cret") {
		t.Fatalf("cookies: user=%q secret=%q", resp.Header.Get("X-User"), resp.Header.Get("X-Secret"))
	}

	m.SetCredentials(domain.Credentials{Username: "alice", Password: "rotated"})
	resp, err = m.AuthenticatedRequest(context.Background(), http.MethodGet, "original/1/0", nil)
	if err != nil {
		t.Fatalf("AuthenticatedRequest: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Secret"); got != DeriveSecret("rotated") {
		t.Fatalf("secret not recomputed after rotation: %q", got)
	}
	if !m.LastLogin().IsZero() {
		t.Fatalf("rotation must not trigger a login")
	}
}

func TestDeriveSecret(t *testing.T) {
	if got := DeriveSecret("password"); got != "5f4dcc3b5aa765d61d8327deb882cf99" {
		t.Fatalf("DeriveSecret: got %q", got)
	}
}

func TestResolve_RejectsAbsoluteRefs(t *testing.T) {
	m := newManager(t, "https://catalog.example", &clock{now: time.Now()})
	if _, err := m.Resolve("https://evil.example/x"); err == nil {
		t.Fatalf("expected error for absolute ref")
	}
	u, err := m.Resolve("updated/1/2/0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.String() != "https://catalog.example/updated/1/2/0" {
		t.Fatalf("Resolve: got %s", u)
	}
}

type staticCreds struct{ c domain.Credentials }

func (s staticCreds) Credentials(context.Context) (domain.Credentials, error) { return s.c, nil }

func TestWatch_ReloadsOnSettingsUpdated(t *testing.T) {
	m := newManager(t, "https://catalog.example", &clock{now: time.Now()})
	bus := memorybus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Watch(ctx, bus, staticCreds{c: domain.Credentials{Username: "bob", Password: "pw"}})
		close(done)
	}()

	deadline := time.After(time.Second)
	for m.Credentials().Username != "bob" {
		bus.Publish(ports.TopicSettingsUpdated, nil)
		select {
		case <-deadline:
			t.Fatalf("credentials not reloaded")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
