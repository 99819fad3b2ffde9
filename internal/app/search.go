package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/subseek/internal/catalogcache"
	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/ports"
)

// SearchService orchestre une recherche sur un catalogue:
// Validate → ResolveCatalogID → FetchListing → Extract → FilterByLanguage → Done.
type SearchService struct {
	catalog  ports.Catalog
	langs    ports.LanguageNormalizer
	shows    *catalogcache.Store[string]
	listings *catalogcache.Store[[]domain.EpisodeRecord]
	bus      ports.EventBus
	logger   zerolog.Logger

	hideIncomplete func(ctx context.Context) bool
}

type SearchOptions struct {
	ShowPolicy    catalogcache.Policy
	ListingPolicy catalogcache.Policy
	CacheOptions  []catalogcache.Option
	Bus           ports.EventBus
	// HideIncomplete est relu à chaque recherche (réglage à chaud).
	// Nil: les sous-titres non terminés sont gardés.
	HideIncomplete func(ctx context.Context) bool
}

func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		ShowPolicy:    catalogcache.ShowPolicy,
		ListingPolicy: catalogcache.ListingPolicy,
	}
}

func NewSearchService(catalog ports.Catalog, langs ports.LanguageNormalizer, logger zerolog.Logger, opts SearchOptions) *SearchService {
	if opts.ShowPolicy.Base <= 0 {
		opts.ShowPolicy = catalogcache.ShowPolicy
	}
	if opts.ListingPolicy.Base <= 0 {
		opts.ListingPolicy = catalogcache.ListingPolicy
	}
	return &SearchService{
		catalog:        catalog,
		langs:          langs,
		shows:          catalogcache.New[string](opts.ShowPolicy, opts.CacheOptions...),
		listings:       catalogcache.New[[]domain.EpisodeRecord](opts.ListingPolicy, opts.CacheOptions...),
		bus:            opts.Bus,
		logger:         logger.With().Str("catalog", catalog.Name()).Logger(),
		hideIncomplete: opts.HideIncomplete,
	}
}

func (s *SearchService) Catalog() ports.Catalog { return s.catalog }

// FlushCache vide les caches de ce catalogue.
func (s *SearchService) FlushCache() {
	s.shows.Flush()
	s.listings.Flush()
	publishJSON(s.bus, ports.TopicCacheFlushed, map[string]string{"catalog": s.catalog.Name()})
}

// CacheStats renvoie le nombre d'entrées (expirées comprises) par cache.
func (s *SearchService) CacheStats() map[string]int {
	return map[string]int{"shows": s.shows.Len(), "listings": s.listings.Len()}
}

type searchRun struct {
	step   domain.SearchStep
	logger zerolog.Logger
}

func (r *searchRun) advance(next domain.SearchStep) {
	if !domain.CanTransition(r.step, next) {
		r.logger.Error().Str("from", string(r.step)).Str("to", string(next)).Msg("invalid search transition")
	}
	r.step = next
}

// Search renvoie les candidats triés (éventuellement aucun).
// NotFound, AuthFailure et requêtes incomplètes donnent une liste vide sans erreur;
// annulation et transport remontent à l'appelant.
func (s *SearchService) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SubtitleCandidate, error) {
	run := &searchRun{
		step: domain.StepValidate,
		logger: s.logger.With().
			Str("trace_id", xid.New().String()).
			Str("title", req.Title).
			Str("kind", string(req.Kind())).
			Logger(),
	}

	if !req.Searchable() {
		run.logger.Debug().Msg("incomplete search request")
		run.advance(domain.StepDone)
		return []domain.SubtitleCandidate{}, nil
	}
	lang, ok := s.langs.Normalize(req.Language)
	if !ok {
		run.logger.Info().Str("language", req.Language).Msg("unknown language")
		run.advance(domain.StepDone)
		return []domain.SubtitleCandidate{}, nil
	}

	var (
		out []domain.SubtitleCandidate
		err error
	)
	if req.Kind() == domain.KindMovie {
		out, err = s.searchMovie(ctx, run, req, lang)
	} else {
		out, err = s.searchEpisode(ctx, run, req, lang)
	}
	run.advance(domain.StepDone)
	if err != nil {
		return s.settle(run, err)
	}

	run.logger.Debug().Int("candidates", len(out)).Msg("search done")
	publishJSON(s.bus, ports.TopicSearchCompleted, map[string]any{
		"catalog":    s.catalog.Name(),
		"title":      req.Title,
		"language":   lang,
		"candidates": len(out),
	})
	return out, nil
}

func (s *SearchService) settle(run *searchRun, err error) ([]domain.SubtitleCandidate, error) {
	if reason, ok := recoverable(err); ok {
		run.logger.Info().Str("reason", reason).Msg("no subtitles")
		return []domain.SubtitleCandidate{}, nil
	}
	if IsCanceled(err) {
		return nil, err
	}
	run.logger.Warn().Err(err).Msg("search failed")
	return nil, classify("search "+s.catalog.Name(), err)
}

func (s *SearchService) searchEpisode(ctx context.Context, run *searchRun, req domain.SearchRequest, lang string) ([]domain.SubtitleCandidate, error) {
	run.advance(domain.StepResolveCatalogID)
	showID, found, err := s.resolveShow(ctx, req.Title)
	if err != nil {
		return nil, err
	}
	if !found {
		run.logger.Info().Msg("unknown title")
		return []domain.SubtitleCandidate{}, nil
	}

	run.advance(domain.StepFetchListing)
	records, err := s.listing(ctx, domain.ListingQuery{ShowID: showID, Season: *req.Season, Language: lang})
	if err != nil {
		return nil, err
	}

	run.advance(domain.StepExtract)
	hideIncomplete := s.hideIncomplete != nil && s.hideIncomplete(ctx)
	sources := make([]candidateSource, 0, len(records))
	for _, rec := range records {
		if rec.Season != *req.Season || rec.Episode != *req.Episode {
			continue
		}
		if !rec.Completed && hideIncomplete {
			continue
		}
		title := rec.Title
		if title == "" {
			title = req.Title
		}
		src := candidateSource{
			ref:       rec.DownloadRef,
			lang:      rec.Language,
			title:     title,
			version:   rec.Version,
			hi:        rec.HearingImpaired,
			completed: rec.Completed,
			downloads: rec.DownloadCount,
		}
		if !rec.DiscoveredAt.IsZero() {
			at := rec.DiscoveredAt
			src.discovered = &at
		}
		sources = append(sources, src)
	}

	run.advance(domain.StepFilterByLanguage)
	return s.filterByLanguage(lang, sources), nil
}

func (s *SearchService) searchMovie(ctx context.Context, run *searchRun, req domain.SearchRequest, lang string) ([]domain.SubtitleCandidate, error) {
	// Pas d'index de films: la recherche titre+année fait office de résolution.
	run.advance(domain.StepResolveCatalogID)
	run.advance(domain.StepFetchListing)
	records, err := s.catalog.SearchMovie(ctx, req.Title, req.Year)
	if err != nil {
		return nil, err
	}

	run.advance(domain.StepExtract)
	sources := make([]candidateSource, 0, len(records))
	for _, rec := range records {
		title := rec.Title
		if title == "" {
			title = req.Title
		}
		// Les pages film ne listent que des versions terminées.
		sources = append(sources, candidateSource{
			ref:       rec.DownloadRef,
			lang:      rec.Language,
			title:     title,
			version:   rec.Version,
			hi:        rec.HearingImpaired,
			completed: true,
		})
	}

	run.advance(domain.StepFilterByLanguage)
	return s.filterByLanguage(lang, sources), nil
}

// resolveShow renvoie l'id catalogue de title. Le cache n'est écrit qu'après
// une recherche complète et non annulée.
func (s *SearchService) resolveShow(ctx context.Context, title string) (string, bool, error) {
	if id, ok := s.shows.Get(title); ok {
		return id, true, nil
	}

	entries, err := s.catalog.SearchShows(ctx, title)
	if err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	for _, e := range entries {
		if e.DisplayName != "" && e.CatalogID != "" {
			s.shows.Put(e.DisplayName, e.CatalogID)
		}
	}
	entry, ok := matchShow(entries, title)
	if !ok {
		return "", false, nil
	}
	s.shows.Put(title, entry.CatalogID)
	return entry.CatalogID, true, nil
}

func (s *SearchService) listing(ctx context.Context, q domain.ListingQuery) ([]domain.EpisodeRecord, error) {
	key := s.catalog.ListingKey(q)
	if recs, ok := s.listings.Get(key); ok {
		return recs, nil
	}
	recs, err := s.catalog.FetchListing(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.listings.Put(key, recs)
	return recs, nil
}

type candidateSource struct {
	ref        string
	lang       string
	title      string
	version    string
	hi         bool
	completed  bool
	downloads  int
	discovered *time.Time
}

// filterByLanguage garde les sources de la langue demandée; à égalité, les
// versions malentendants passent après les versions standard.
func (s *SearchService) filterByLanguage(lang string, sources []candidateSource) []domain.SubtitleCandidate {
	kept := make([]candidateSource, 0, len(sources))
	seen := map[string]struct{}{}
	for _, src := range sources {
		got, ok := s.langs.Normalize(src.lang)
		if !ok || got != lang || src.ref == "" {
			continue
		}
		if _, dup := seen[src.ref]; dup {
			continue
		}
		seen[src.ref] = struct{}{}
		kept = append(kept, src)
	}
	sort.SliceStable(kept, func(i, j int) bool { return !kept[i].hi && kept[j].hi })

	out := make([]domain.SubtitleCandidate, 0, len(kept))
	for _, src := range kept {
		out = append(out, domain.SubtitleCandidate{
			ID:              EncodeCandidateID(src.ref, lang),
			Catalog:         s.catalog.Name(),
			DisplayName:     displayName(src.title, src.version, src.hi),
			LanguageCode:    lang,
			Format:          domain.FormatSRT,
			HearingImpaired: src.hi,
			Completed:       src.completed,
			DownloadCount:   src.downloads,
			DiscoveredAt:    src.discovered,
		})
	}
	return out
}

func displayName(title, version string, hi bool) string {
	name := title
	if version != "" {
		name = fmt.Sprintf("%s - %s", title, version)
	}
	if hi {
		name += " - Hearing Impaired"
	}
	return name
}

// publishJSON est best-effort: sans bus ou sans encodage possible, rien n'est émis.
func publishJSON(bus ports.EventBus, topic string, v any) {
	if bus == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	bus.Publish(topic, b)
}
