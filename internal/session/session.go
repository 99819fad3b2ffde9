// Package session gère la connexion à un catalogue authentifié: login par
// formulaire, détection des échecs, cooldown et requêtes signées.
package session

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/ports"
)

type Reason string

const (
	ReasonAccountMissing   Reason = "account does not exist"
	ReasonWrongPassword    Reason = "wrong password"
	ReasonUnexpectedStatus Reason = "unexpected status"
	ReasonNoCredentials    Reason = "missing credentials"
)

// AuthFailure est terminal: jamais retenté, seulement loggé.
type AuthFailure struct {
	Reason Reason
	Status int
}

func (e *AuthFailure) Error() string {
	if e.Status != 0 && e.Reason == ReasonUnexpectedStatus {
		return fmt.Sprintf("session: auth failure: %s (%d)", e.Reason, e.Status)
	}
	return "session: auth failure: " + string(e.Reason)
}

// Marker associe un texte du corps de réponse (200) à une raison d'échec.
type Marker struct {
	Text   string
	Reason Reason
}

// Limiter plafonne les requêtes simultanées vers le catalogue.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

type Config struct {
	BaseURL   string
	LoginPath string
	UserAgent string
	// Cooldown entre deux logins réussis.
	Cooldown time.Duration
	Markers  []Marker
	// Cookies portant l'identifiant du compte et le secret dérivé.
	UserCookie   string
	SecretCookie string

	Attempts   uint
	RetryDelay time.Duration

	Client  *http.Client
	Limiter Limiter
	Now     func() time.Time
}

type Manager struct {
	cfg    Config
	base   *url.URL
	client *http.Client
	logger zerolog.Logger

	mu    sync.RWMutex
	creds domain.Credentials

	// unix nano du dernier login réussi, 0 = jamais.
	lastLogin atomic.Int64
	// Un seul login à la fois; le slot est pris avec le contexte de l'appelant.
	loginSlot chan struct{}
}

func New(cfg Config, logger zerolog.Logger) (*Manager, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("session: invalid base url %q", cfg.BaseURL)
	}
	if cfg.LoginPath == "" {
		return nil, errors.New("session: login path required")
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		cfg:       cfg,
		base:      base,
		client:    client,
		logger:    logger,
		loginSlot: make(chan struct{}, 1),
	}, nil
}

// SetCredentials remplace les identifiants. Aucune requête en cours n'est
// interrompue et aucun login n'est forcé: le secret dérivé change au prochain appel.
func (m *Manager) SetCredentials(c domain.Credentials) {
	m.mu.Lock()
	m.creds = c
	m.mu.Unlock()
}

func (m *Manager) Credentials() domain.Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds
}

// LastLogin renvoie l'heure du dernier login réussi (zéro si aucun).
func (m *Manager) LastLogin() time.Time {
	ns := m.lastLogin.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (m *Manager) withinCooldown() bool {
	ns := m.lastLogin.Load()
	if ns == 0 {
		return false
	}
	return m.cfg.Now().Sub(time.Unix(0, ns)) < m.cfg.Cooldown
}

// EnsureSession se connecte si le dernier login réussi est plus vieux que le cooldown.
// Renvoie nil, une *AuthFailure, une erreur de transport ou l'erreur du contexte.
func (m *Manager) EnsureSession(ctx context.Context) error {
	if m.withinCooldown() {
		return nil
	}

	select {
	case m.loginSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.loginSlot }()

	// Un autre appelant a pu se connecter pendant l'attente.
	if m.withinCooldown() {
		return nil
	}

	creds := m.Credentials()
	if creds.Empty() {
		return &AuthFailure{Reason: ReasonNoCredentials}
	}

	if err := m.login(ctx, creds); err != nil {
		var af *AuthFailure
		if errors.As(err, &af) {
			m.logger.Warn().Str("reason", string(af.Reason)).Int("status", af.Status).Msg("login refused")
		}
		return err
	}
	m.lastLogin.Store(m.cfg.Now().UnixNano())
	m.logger.Debug().Msg("logged in")
	return nil
}

func (m *Manager) login(ctx context.Context, creds domain.Credentials) error {
	loginURL := m.base.ResolveReference(&url.URL{Path: m.cfg.LoginPath})
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	form.Set("remember", "true")
	form.Set("url", "")
	form.Set("Submit", "Log in")
	encoded := form.Encode()

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), strings.NewReader(encoded))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, err := m.do(ctx, req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			// Tout statut autre que 200 est un refus, sans nouvelle tentative.
			if resp.StatusCode != http.StatusOK {
				return &AuthFailure{Reason: ReasonUnexpectedStatus, Status: resp.StatusCode}
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return err
			}
			page := string(body)
			for _, mk := range m.cfg.Markers {
				if mk.Text != "" && strings.Contains(page, mk.Text) {
					return &AuthFailure{Reason: mk.Reason, Status: resp.StatusCode}
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(m.cfg.Attempts),
		retry.Delay(m.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsTransient),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Debug().Err(err).Uint("attempt", n+1).Msg("login retry")
		}),
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// IsTransient: erreurs réseau et 5xx. Jamais les échecs d'auth ni l'annulation.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var af *AuthFailure
	if errors.As(err, &af) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return strings.Contains(err.Error(), "http error: 5")
}

// Resolve résout ref (relatif) contre la base du catalogue.
func (m *Manager) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("session: invalid ref %q: %w", ref, err)
	}
	if u.IsAbs() || u.Host != "" {
		return nil, fmt.Errorf("session: ref must be catalog-relative: %q", ref)
	}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return m.base.ResolveReference(u), nil
}

// AuthenticatedRequest envoie une requête portant l'identifiant du compte et
// le hash du mot de passe, recalculés depuis les identifiants courants.
func (m *Manager) AuthenticatedRequest(ctx context.Context, method, ref string, body io.Reader) (*http.Response, error) {
	u, err := m.Resolve(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	creds := m.Credentials()
	if !creds.Empty() {
		if m.cfg.UserCookie != "" {
			req.AddCookie(&http.Cookie{Name: m.cfg.UserCookie, Value: url.QueryEscape(creds.Username)})
		}
		if m.cfg.SecretCookie != "" {
			req.AddCookie(&http.Cookie{Name: m.cfg.SecretCookie, Value: DeriveSecret(creds.Password)})
		}
	}
	return m.do(ctx, req)
}

// Get fait un GET anonyme relatif à la base (pages publiques).
func (m *Manager) Get(ctx context.Context, ref string) (*http.Response, error) {
	u, err := m.Resolve(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return m.do(ctx, req)
}

// DeriveSecret: hash MD5 hexadécimal du mot de passe, format attendu par le catalogue.
func DeriveSecret(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (m *Manager) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}
	req.Header.Set("Referer", m.base.String())
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*")
	}

	if m.cfg.Limiter != nil {
		if err := m.cfg.Limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		if m.cfg.Limiter != nil {
			m.cfg.Limiter.Release()
		}
		return nil, err
	}
	if m.cfg.Limiter != nil {
		resp.Body = &releaseOnClose{ReadCloser: resp.Body, release: m.cfg.Limiter.Release}
	}
	return resp, nil
}

type releaseOnClose struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (r *releaseOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.once.Do(r.release)
	return err
}

// Reload relit les identifiants depuis src.
func (m *Manager) Reload(ctx context.Context, src ports.CredentialSource) error {
	c, err := src.Credentials(ctx)
	if err != nil {
		return err
	}
	m.SetCredentials(c)
	return nil
}

// Watch recharge les identifiants à chaque événement settings.updated.
func (m *Manager) Watch(ctx context.Context, bus ports.EventBus, src ports.CredentialSource) {
	if bus == nil || src == nil {
		return
	}
	ch, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Topic != ports.TopicSettingsUpdated {
				continue
			}
			if err := m.Reload(ctx, src); err != nil {
				m.logger.Warn().Err(err).Msg("failed to reload credentials")
				continue
			}
			m.logger.Info().Msg("catalog credentials rotated")
		}
	}
}
