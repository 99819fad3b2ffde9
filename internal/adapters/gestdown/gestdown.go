// Package gestdown adapte l'API JSON Gestdown (miroir d'Addic7ed, sans login).
package gestdown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/subseek/internal/buildinfo"
	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/language"
	"github.com/Guilhem-Bonnet/subseek/internal/ports"
	"github.com/Guilhem-Bonnet/subseek/internal/session"
)

const (
	Name           = "gestdown"
	DefaultBaseURL = "https://api.gestdown.info"

	maxBodyBytes = 8 << 20
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Attempts   uint
	RetryDelay time.Duration
	Limiter    session.Limiter
	Client     *http.Client
}

type Client struct {
	base    *url.URL
	client  *http.Client
	limiter session.Limiter
	langs   ports.LanguageNormalizer
	logger  zerolog.Logger

	attempts uint
	delay    time.Duration
}

func New(cfg Config, langs ports.LanguageNormalizer, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gestdown: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 300 * time.Millisecond
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		base:     base,
		client:   client,
		limiter:  cfg.Limiter,
		langs:    langs,
		logger:   logger.With().Str("catalog", Name).Logger(),
		attempts: cfg.Attempts,
		delay:    cfg.RetryDelay,
	}, nil
}

func (c *Client) Name() string { return Name }

type showsResponse struct {
	Shows []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		NbSeasons int    `json:"nbSeasons"`
		Seasons   []int  `json:"seasons"`
		TvDbID    int    `json:"tvDbId"`
	} `json:"shows"`
}

type episodesResponse struct {
	Episodes []struct {
		Season    int    `json:"season"`
		Number    int    `json:"number"`
		Title     string `json:"title"`
		Subtitles []struct {
			DownloadURI     string    `json:"downloadUri"`
			Language        string    `json:"language"`
			Version         string    `json:"version"`
			HearingImpaired bool      `json:"hearingImpaired"`
			Corrected       bool      `json:"corrected"`
			HD              bool      `json:"hd"`
			Completed       bool      `json:"completed"`
			Discovered      time.Time `json:"discovered"`
			DownloadCount   int       `json:"downloadCount"`
		} `json:"subtitles"`
	} `json:"episodes"`
}

func (c *Client) SearchShows(ctx context.Context, title string) ([]domain.ShowIndexEntry, error) {
	var out showsResponse
	if err := c.getJSON(ctx, "/shows/search/"+url.PathEscape(strings.TrimSpace(title)), &out); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	entries := make([]domain.ShowIndexEntry, 0, len(out.Shows))
	for _, s := range out.Shows {
		if s.ID == "" || s.Name == "" {
			continue
		}
		entries = append(entries, domain.ShowIndexEntry{DisplayName: s.Name, CatalogID: s.ID})
	}
	return entries, nil
}

// ListingKey: la langue fait partie de la requête amont.
func (c *Client) ListingKey(q domain.ListingQuery) string {
	return q.ShowID + "/" + strconv.Itoa(q.Season) + "/" + q.Language
}

func (c *Client) FetchListing(ctx context.Context, q domain.ListingQuery) ([]domain.EpisodeRecord, error) {
	lang := q.Language
	if iso1, ok := language.ToISO1(lang); ok {
		lang = iso1
	}
	ref := fmt.Sprintf("/shows/%s/%d/%s", url.PathEscape(q.ShowID), q.Season, url.PathEscape(lang))

	var out episodesResponse
	if err := c.getJSON(ctx, ref, &out); err != nil {
		return nil, err
	}

	var recs []domain.EpisodeRecord
	for _, ep := range out.Episodes {
		for _, sub := range ep.Subtitles {
			if sub.DownloadURI == "" {
				continue
			}
			code, ok := c.langs.Normalize(sub.Language)
			if !ok {
				c.logger.Debug().Str("language", sub.Language).Msg("unknown language")
			}
			recs = append(recs, domain.EpisodeRecord{
				Season:          ep.Season,
				Episode:         ep.Number,
				Title:           ep.Title,
				Language:        code,
				Version:         sub.Version,
				Completed:       sub.Completed,
				HearingImpaired: sub.HearingImpaired,
				Corrected:       sub.Corrected,
				HD:              sub.HD,
				DownloadRef:     strings.TrimPrefix(sub.DownloadURI, "/"),
				DiscoveredAt:    sub.Discovered,
				DownloadCount:   sub.DownloadCount,
			})
		}
	}
	return recs, nil
}

func (c *Client) SearchMovie(context.Context, string, int) ([]domain.MovieRecord, error) {
	return nil, ports.ErrUnsupported
}

func (c *Client) Open(ctx context.Context, ref string) (*domain.Download, error) {
	resp, err := c.get(ctx, ref, "*/*")
	if err != nil {
		return nil, err
	}
	return &domain.Download{ContentType: resp.Header.Get("Content-Type"), Body: resp.Body}, nil
}

func (c *Client) getJSON(ctx context.Context, ref string, v any) error {
	err := retry.Do(
		func() error {
			resp, err := c.get(ctx, ref, "application/json")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("gestdown: decode %s: %w", ref, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(session.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug().Err(err).Uint("attempt", n+1).Str("ref", ref).Msg("retry")
		}),
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// get envoie un GET et ne renvoie la réponse que si elle est en 2xx.
// Le slot du limiteur est rendu à la fermeture du body.
func (c *Client) get(ctx context.Context, ref, accept string) (*http.Response, error) {
	rel, err := url.Parse(ref)
	if err != nil || rel.IsAbs() || rel.Host != "" {
		return nil, fmt.Errorf("gestdown: ref must be catalog-relative: %q", ref)
	}
	u := c.base.String() + "/" + strings.TrimPrefix(ref, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Referer", c.base.String())
	req.Header.Set("Accept", accept)

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}
	release := func() {
		if c.limiter != nil {
			c.limiter.Release()
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		release()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		release()
		if resp.StatusCode == http.StatusNotFound {
			return nil, ports.ErrNotFound
		}
		return nil, errors.New("gestdown: http error: " + resp.Status)
	}
	if c.limiter != nil {
		resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	}
	return resp, nil
}

type releasingBody struct {
	io.ReadCloser
	released bool
	release  func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	if !b.released {
		b.released = true
		b.release()
	}
	return err
}
