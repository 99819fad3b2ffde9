package app

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/language"
)

type fakeCatalog struct {
	mu sync.Mutex

	shows    []domain.ShowIndexEntry
	showsErr error
	// Appelé avant de répondre à SearchShows (ex: bloquer jusqu'à l'annulation).
	showsHook func(ctx context.Context) error

	listings   map[string][]domain.EpisodeRecord
	listingErr error
	movies     []domain.MovieRecord
	movieErr   error

	contentType string
	body        string
	openErr     error
	openedRefs  []string

	showCalls    atomic.Int32
	listingCalls atomic.Int32
}

func (c *fakeCatalog) Name() string { return "fake" }

func (c *fakeCatalog) SearchShows(ctx context.Context, title string) ([]domain.ShowIndexEntry, error) {
	c.showCalls.Add(1)
	if c.showsHook != nil {
		if err := c.showsHook(ctx); err != nil {
			return nil, err
		}
	}
	if c.showsErr != nil {
		return nil, c.showsErr
	}
	return c.shows, nil
}

func (c *fakeCatalog) ListingKey(q domain.ListingQuery) string {
	return q.ShowID + "/" + strconv.Itoa(q.Season)
}

func (c *fakeCatalog) FetchListing(ctx context.Context, q domain.ListingQuery) ([]domain.EpisodeRecord, error) {
	c.listingCalls.Add(1)
	if c.listingErr != nil {
		return nil, c.listingErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listings[c.ListingKey(q)], nil
}

func (c *fakeCatalog) SearchMovie(ctx context.Context, title string, year int) ([]domain.MovieRecord, error) {
	return c.movies, c.movieErr
}

func (c *fakeCatalog) Open(ctx context.Context, ref string) (*domain.Download, error) {
	c.mu.Lock()
	c.openedRefs = append(c.openedRefs, ref)
	c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	return &domain.Download{ContentType: c.contentType, Body: io.NopCloser(strings.NewReader(c.body))}, nil
}

// authCatalog ajoute une session au faux catalogue.
type authCatalog struct {
	*fakeCatalog
	ensureErr   error
	ensureCalls atomic.Int32
}

func (c *authCatalog) EnsureSession(ctx context.Context) error {
	c.ensureCalls.Add(1)
	return c.ensureErr
}

var testLangs = language.New()

func intPtr(v int) *int { return &v }
