// Package addic7ed adapte le catalogue Addic7ed (pages HTML + login par formulaire).
package addic7ed

import (
	"context"
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

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/markup"
	"github.com/Guilhem-Bonnet/subseek/internal/ports"
	"github.com/Guilhem-Bonnet/subseek/internal/session"
)

const (
	Name           = "addic7ed"
	DefaultBaseURL = "https://www.addic7ed.com"

	loginPath    = "/dologin.php"
	maxPageBytes = 16 << 20
)

// Marqueurs d'échec présents dans une page de login renvoyée en 200.
var loginMarkers = []session.Marker{
	{Text: "doesn't exist", Reason: session.ReasonAccountMissing},
	{Text: "Wrong password", Reason: session.ReasonWrongPassword},
}

// Config: RetryDelay est le délai initial du backoff exponentiel.
type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	Cooldown   time.Duration
	Attempts   uint
	RetryDelay time.Duration
	Limiter    session.Limiter
	Client     *http.Client
	Now        func() time.Time
}

type Client struct {
	session *session.Manager
	langs   ports.LanguageNormalizer
	logger  zerolog.Logger
	retries uint
	delay   time.Duration

	shows    markup.Extractor
	episodes markup.Extractor
	movies   markup.Extractor
}

func New(cfg Config, langs ports.LanguageNormalizer, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
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
	logger = logger.With().Str("catalog", Name).Logger()

	mgr, err := session.New(session.Config{
		BaseURL:      cfg.BaseURL,
		LoginPath:    loginPath,
		UserAgent:    cfg.UserAgent,
		Cooldown:     cfg.Cooldown,
		Markers:      loginMarkers,
		UserCookie:   "wikisubtitlesuser",
		SecretCookie: "wikisubtitlespass",
		Attempts:     cfg.Attempts,
		RetryDelay:   cfg.RetryDelay,
		Client:       client,
		Limiter:      cfg.Limiter,
		Now:          cfg.Now,
	}, logger.With().Str("component", "session").Logger())
	if err != nil {
		return nil, fmt.Errorf("addic7ed: %w", err)
	}

	c := &Client{
		session:  mgr,
		langs:    langs,
		logger:   logger,
		retries:  cfg.Attempts,
		delay:    cfg.RetryDelay,
		shows:    showIndexExtractor(),
		episodes: episodeExtractor(),
		movies:   movieBlockExtractor(),
	}
	c.shows.Logger = logger
	c.episodes.Logger = logger
	c.movies.Logger = logger
	return c, nil
}

func (c *Client) Name() string { return Name }

// Session expose le gestionnaire de session (rotation des identifiants).
func (c *Client) Session() *session.Manager { return c.session }

func (c *Client) EnsureSession(ctx context.Context) error {
	return c.session.EnsureSession(ctx)
}

// SearchShows renvoie l'index complet des séries: le catalogue n'a pas de
// recherche par nom exploitable, le filtrage se fait côté orchestrateur.
func (c *Client) SearchShows(ctx context.Context, title string) ([]domain.ShowIndexEntry, error) {
	page, err := c.page(ctx, "/shows.php")
	if err != nil {
		return nil, err
	}
	recs, err := c.shows.Records(page)
	if err != nil {
		return nil, err
	}
	var out []domain.ShowIndexEntry
	for _, rec := range recs {
		for _, t := range rec.Tuples {
			m := t[0]
			name := strings.TrimSpace(m.Group(1))
			if name == "" {
				continue
			}
			out = append(out, domain.ShowIndexEntry{DisplayName: name, CatalogID: m.Group(0)})
		}
	}
	return out, nil
}

// ListingKey: un listing par série et par saison, toutes langues confondues.
func (c *Client) ListingKey(q domain.ListingQuery) string {
	return q.ShowID + "/" + strconv.Itoa(q.Season)
}

func (c *Client) FetchListing(ctx context.Context, q domain.ListingQuery) ([]domain.EpisodeRecord, error) {
	ref := "/ajax_loadShow.php?" + url.Values{
		"show":   {q.ShowID},
		"season": {strconv.Itoa(q.Season)},
		"langs":  {""},
		"hd":     {"0"},
		"hi":     {"0"},
	}.Encode()
	page, err := c.page(ctx, ref)
	if err != nil {
		return nil, err
	}
	return c.parseListing(page)
}

func (c *Client) parseListing(page string) ([]domain.EpisodeRecord, error) {
	recs, err := c.episodes.Records(page)
	if err != nil {
		return nil, err
	}
	out := make([]domain.EpisodeRecord, 0, len(recs))
	for _, rec := range recs {
		ep, err := c.episodeRecord(rec)
		if err != nil {
			c.logger.Warn().Err(err).Int("row", rec.Index).Msg("skipping listing row")
			continue
		}
		out = append(out, ep)
	}
	if len(recs) > 0 && len(out) == 0 {
		return nil, markup.ErrLayout
	}
	return out, nil
}

func (c *Client) episodeRecord(rec markup.Record) (domain.EpisodeRecord, error) {
	cells := rec.Tuples
	if len(cells) < minEpisodeCells {
		return domain.EpisodeRecord{}, fmt.Errorf("addic7ed: %d cells, want at least %d", len(cells), minEpisodeCells)
	}
	season, err := cellInt(cells[colSeason])
	if err != nil {
		return domain.EpisodeRecord{}, fmt.Errorf("addic7ed: season: %w", err)
	}
	episode, err := cellInt(cells[colEpisode])
	if err != nil {
		return domain.EpisodeRecord{}, fmt.Errorf("addic7ed: episode: %w", err)
	}
	ref := cellHref(cells[colDownload])
	if ref == "" {
		return domain.EpisodeRecord{}, errors.New("addic7ed: missing download link")
	}
	rawLang := cellText(cells[colLanguage])
	lang, ok := c.langs.Normalize(rawLang)
	if !ok {
		c.logger.Debug().Str("language", rawLang).Msg("unknown language")
	}

	ep := domain.EpisodeRecord{
		Season:          season,
		Episode:         episode,
		Title:           cellText(cells[colTitle]),
		Language:        lang,
		Version:         cellText(cells[colVersion]),
		Completed:       strings.EqualFold(cellText(cells[colCompleted]), "Completed"),
		HearingImpaired: cellFlag(cells[colHearingImpaired]),
		Corrected:       cellFlag(cells[colCorrected]),
		HD:              cellFlag(cells[colHD]),
		DownloadRef:     ref,
	}
	if len(cells) > colMulti {
		ep.Multi = cellFlag(cells[colMulti])
	}
	return ep, nil
}

// SearchMovie cherche "titre (année)" puis lit les blocs de versions de la fiche.
func (c *Client) SearchMovie(ctx context.Context, title string, year int) ([]domain.MovieRecord, error) {
	query := strings.TrimSpace(title)
	if year > 0 {
		query = fmt.Sprintf("%s (%d)", query, year)
	}
	page, err := c.page(ctx, "/search.php?"+url.Values{"search": {query}, "Submit": {"Search"}}.Encode())
	if err != nil {
		return nil, err
	}

	// Un résultat unique redirige directement vers la fiche.
	if !reVersionBlock.MatchString(markup.Normalize(page)) {
		ref, ok := pickMovie(page, title, year)
		if !ok {
			return nil, ports.ErrNotFound
		}
		if page, err = c.page(ctx, "/"+ref); err != nil {
			return nil, err
		}
	}
	return c.parseMovie(page, query)
}

func pickMovie(page, title string, year int) (string, bool) {
	links := markup.Extract(page, reMovieLink)[0]
	want := strings.ToLower(strings.TrimSpace(title))
	yearTag := ""
	if year > 0 {
		yearTag = fmt.Sprintf("(%d)", year)
	}
	var fallback string
	for _, m := range links {
		text := strings.ToLower(strings.TrimSpace(m.Group(1)))
		if !strings.HasPrefix(text, want) {
			continue
		}
		if yearTag != "" && !strings.Contains(text, yearTag) {
			continue
		}
		if text == want || text == strings.TrimSpace(want+" "+yearTag) {
			return m.Group(0), true
		}
		if fallback == "" {
			fallback = m.Group(0)
		}
	}
	return fallback, fallback != ""
}

func (c *Client) parseMovie(page, fallbackTitle string) ([]domain.MovieRecord, error) {
	title := fallbackTitle
	if m := markup.Extract(page, reMovieTitle)[0]; len(m) > 0 {
		title = strings.TrimSpace(m[0].Group(0))
	}
	blocks, err := c.movies.Records(page)
	if err != nil {
		return nil, err
	}
	var out []domain.MovieRecord
	for _, b := range blocks {
		version := ""
		if v := markup.FindAll(b.Text, reVersion); len(v) > 0 {
			version = strings.TrimSpace(v[0].Group(0))
		}
		hi := strings.Contains(b.Text, "Hearing Impaired")
		for _, t := range b.Tuples {
			rawLang := strings.TrimSpace(t[0].Group(0))
			lang, _ := c.langs.Normalize(rawLang)
			out = append(out, domain.MovieRecord{
				Title:           title,
				Version:         version,
				Language:        lang,
				DownloadRef:     t[1].Group(0),
				HearingImpaired: hi,
			})
		}
	}
	return out, nil
}

// Open télécharge ref avec les cookies de session.
func (c *Client) Open(ctx context.Context, ref string) (*domain.Download, error) {
	resp, err := c.session.AuthenticatedRequest(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return &domain.Download{ContentType: resp.Header.Get("Content-Type"), Body: resp.Body}, nil
}

// page lit une page du catalogue, avec reprise sur les erreurs transitoires.
func (c *Client) page(ctx context.Context, ref string) (string, error) {
	var out string
	err := retry.Do(
		func() error {
			resp, err := c.session.AuthenticatedRequest(ctx, http.MethodGet, ref, nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if err := checkStatus(resp); err != nil {
				return err
			}
			b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
			if err != nil {
				return err
			}
			out = string(b)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.retries),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(session.IsTransient),
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ports.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.New("addic7ed: http error: " + resp.Status)
	}
	return nil
}
