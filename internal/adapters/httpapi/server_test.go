package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/subseek/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/subseek/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/subseek/internal/app"
	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/httpjson"
	"github.com/Guilhem-Bonnet/subseek/internal/language"
)

const sampleSRT = "1\n00:00:01,000 --> 00:00:02,500\nHello there.\n"

type stubCatalog struct {
	mu         sync.Mutex
	listingErr error
	openErr    error
	opened     []string
}

func (c *stubCatalog) Name() string { return "stub" }

func (c *stubCatalog) SearchShows(ctx context.Context, title string) ([]domain.ShowIndexEntry, error) {
	return []domain.ShowIndexEntry{{DisplayName: "Game of Thrones", CatalogID: "1234"}}, nil
}

func (c *stubCatalog) ListingKey(q domain.ListingQuery) string {
	return q.ShowID + "/" + strconv.Itoa(q.Season)
}

func (c *stubCatalog) FetchListing(ctx context.Context, q domain.ListingQuery) ([]domain.EpisodeRecord, error) {
	if c.listingErr != nil {
		return nil, c.listingErr
	}
	return []domain.EpisodeRecord{
		{Season: 3, Episode: 9, Title: "The Rains of Castamere", Language: "eng", Version: "EVOLVE", Completed: true, DownloadRef: "/updated/1/75417/0"},
		{Season: 3, Episode: 9, Title: "The Rains of Castamere", Language: "eng", Version: "EVOLVE", Completed: true, HearingImpaired: true, DownloadRef: "/updated/1/75417/1"},
		{Season: 3, Episode: 9, Title: "The Rains of Castamere", Language: "fra", Version: "EVOLVE", Completed: true, DownloadRef: "/updated/8/75417/0"},
	}, nil
}

func (c *stubCatalog) SearchMovie(ctx context.Context, title string, year int) ([]domain.MovieRecord, error) {
	return nil, nil
}

func (c *stubCatalog) Open(ctx context.Context, ref string) (*domain.Download, error) {
	c.mu.Lock()
	c.opened = append(c.opened, ref)
	c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	if strings.HasPrefix(ref, "/html") {
		return &domain.Download{ContentType: "text/html", Body: io.NopCloser(strings.NewReader("<html></html>"))}, nil
	}
	return &domain.Download{ContentType: "text/srt", Body: io.NopCloser(strings.NewReader(sampleSRT))}, nil
}

type testEnv struct {
	handler http.Handler
	catalog *stubCatalog
	limiter *app.DynamicLimiter
	bus     *memorybus.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	bus := memorybus.New()
	t.Cleanup(bus.Close)
	settings := app.NewSettingsService(sqlite.NewSettingsRepository(db.SQL), bus)

	cat := &stubCatalog{}
	reg := app.NewRegistry()
	reg.Register(&app.CatalogService{
		Search: app.NewSearchService(cat, language.New(), zerolog.Nop(), app.SearchOptions{Bus: bus}),
		Fetch:  app.NewFetchService(cat, bus, zerolog.Nop()),
	})

	lim := app.NewDynamicLimiter(1)
	srv := NewServer(zerolog.Nop(), reg, settings, bus, lim, nil)
	return &testEnv{handler: srv.Router(), catalog: cat, limiter: lim, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestSearchThenFetch(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/catalogs/stub/search?title=game+of+thrones&season=3&episode=9&language=English", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("search status: %d body=%s", rr.Code, rr.Body)
	}
	cands := decode[[]domain.SubtitleCandidate](t, rr)
	if len(cands) != 2 {
		t.Fatalf("want 2 english candidates, got %+v", cands)
	}
	if cands[0].HearingImpaired || !cands[1].HearingImpaired {
		t.Fatalf("hearing impaired should come last: %+v", cands)
	}
	if cands[1].DisplayName != "The Rains of Castamere - EVOLVE - Hearing Impaired" {
		t.Fatalf("display name: %q", cands[1].DisplayName)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/catalogs/stub/subtitles/"+url.PathEscape(cands[0].ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("fetch status: %d body=%s", rr.Code, rr.Body)
	}
	if rr.Body.String() != sampleSRT {
		t.Fatalf("payload: %q", rr.Body.String())
	}
	if got := rr.Header().Get("X-Subtitle-Language"); got != "eng" {
		t.Fatalf("language header: %q", got)
	}
	if len(env.catalog.opened) != 1 || env.catalog.opened[0] != "/updated/1/75417/0" {
		t.Fatalf("opened: %v", env.catalog.opened)
	}
}

func TestFetch_MismatchIsNoContent(t *testing.T) {
	env := newTestEnv(t)
	id := app.EncodeCandidateID("/html/page", "eng")
	rr := env.do(t, http.MethodGet, "/api/v1/catalogs/stub/subtitles/"+url.PathEscape(id), nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: %d body=%s", rr.Code, rr.Body)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"unknown catalog", "/api/v1/catalogs/nope/search?title=x&language=eng", http.StatusNotFound, app.CodeUnknownCatalog},
		{"bad season", "/api/v1/catalogs/stub/search?title=x&season=three&episode=1&language=eng", http.StatusBadRequest, app.CodeInvalidRequest},
		{"bad id", "/api/v1/catalogs/stub/subtitles/no-separator", http.StatusBadRequest, app.CodeInvalidID},
	}
	for _, tc := range cases {
		rr := env.do(t, http.MethodGet, tc.target, nil)
		if rr.Code != tc.status {
			t.Fatalf("%s: status want %d, got %d (%s)", tc.name, tc.status, rr.Code, rr.Body)
		}
		if body := decode[httpjson.ErrorBody](t, rr); body.Code != tc.code {
			t.Fatalf("%s: code want %q, got %q", tc.name, tc.code, body.Code)
		}
	}

	env.catalog.listingErr = &url.Error{Op: "Get", URL: "http://catalog", Err: errors.New("connection refused")}
	rr := env.do(t, http.MethodGet, "/api/v1/catalogs/stub/search?title=Game+of+Thrones&season=3&episode=9&language=eng", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("transport: status %d body=%s", rr.Code, rr.Body)
	}

	env.catalog.openErr = context.Canceled
	rr = env.do(t, http.MethodGet, "/api/v1/catalogs/stub/subtitles/"+url.PathEscape(app.EncodeCandidateID("/a", "eng")), nil)
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("canceled: status %d body=%s", rr.Code, rr.Body)
	}
}

func TestBatchSearch(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"requests":[
		{"title":"Game of Thrones","season":3,"episode":9,"language":"fra"},
		{"title":"","language":"eng"},
		{"title":"Game of Thrones","season":3,"episode":9,"language":"eng"}
	]}`)
	rr := env.do(t, http.MethodPost, "/api/v1/catalogs/stub/search/batch", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rr.Code, rr.Body)
	}
	out := decode[struct {
		Results []app.BatchResult `json:"results"`
	}](t, rr)
	if len(out.Results) != 3 {
		t.Fatalf("results: %+v", out.Results)
	}
	if len(out.Results[0].Candidates) != 1 || len(out.Results[1].Candidates) != 0 || len(out.Results[2].Candidates) != 2 {
		t.Fatalf("results out of order or wrong: %+v", out.Results)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/catalogs/stub/search/batch", []byte(`{`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid json: status %d", rr.Code)
	}
}

func TestSettings_RedactedAndLimiterUpdated(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"catalogUsername":"alice","catalogPassword":"s3cret","maxConcurrentRequests":3,"maxBatchWorkers":2}`)
	rr := env.do(t, http.MethodPut, "/api/v1/settings", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status: %d body=%s", rr.Code, rr.Body)
	}
	if got := decode[domain.Settings](t, rr); got.CatalogPassword != "********" {
		t.Fatalf("password leaked in put response: %q", got.CatalogPassword)
	}
	if env.limiter.Limit() != 3 {
		t.Fatalf("limiter limit: want 3, got %d", env.limiter.Limit())
	}

	rr = env.do(t, http.MethodGet, "/api/v1/settings", nil)
	got := decode[domain.Settings](t, rr)
	if got.CatalogUsername != "alice" || got.CatalogPassword != "********" {
		t.Fatalf("get: %+v", got)
	}
}

func TestSettings_RejectsInvalid(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]string{
		"unknown field":    `{"catalogUsername":"alice","proxy":"socks5://x"}`,
		"negative":         `{"maxConcurrentRequests":-1}`,
		"too many workers": `{"maxBatchWorkers":1000}`,
		"password alone":   `{"catalogPassword":"s3cret"}`,
	}
	for name, body := range cases {
		rr := env.do(t, http.MethodPut, "/api/v1/settings", []byte(body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d body=%s", name, rr.Code, rr.Body)
		}
		if got := decode[httpjson.ErrorBody](t, rr); got.Code != app.CodeInvalidRequest {
			t.Fatalf("%s: code %q", name, got.Code)
		}
	}
	if env.limiter.Limit() != 1 {
		t.Fatalf("limiter must not change on rejected settings, got %d", env.limiter.Limit())
	}
}

func TestCatalogsListAndFlush(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/v1/catalogs/stub/search?title=Game+of+Thrones&season=3&episode=9&language=eng", nil)

	rr := env.do(t, http.MethodGet, "/api/v1/catalogs", nil)
	list := decode[[]catalogInfo](t, rr)
	if len(list) != 1 || list[0].Name != "stub" || list[0].Cache["listings"] != 1 {
		t.Fatalf("catalogs: %+v", list)
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/catalogs/stub/cache", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("flush status: %d", rr.Code)
	}
	list = decode[[]catalogInfo](t, env.do(t, http.MethodGet, "/api/v1/catalogs", nil))
	if list[0].Cache["listings"] != 0 || list[0].Cache["shows"] != 0 {
		t.Fatalf("cache not flushed: %+v", list)
	}
}

func TestOpenAPIAndVersion(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/v1/openapi.json", "/api/v1/version", "/api/v1/health"} {
		rr := env.do(t, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rr.Code)
		}
	}
	health := decode[struct {
		Status  string           `json:"status"`
		Limiter app.LimiterStats `json:"limiter"`
	}](t, env.do(t, http.MethodGet, "/api/v1/health", nil))
	if health.Status != "ok" || health.Limiter.Limit != 1 || health.Limiter.InFlight != 0 {
		t.Fatalf("health: %+v", health)
	}

	doc := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/openapi.json", nil))
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/api/v1/catalogs/{catalog}/subtitles/{id}"]; !ok {
		t.Fatalf("missing subtitles path in openapi")
	}
}

func TestEvents_StreamsBusMessages(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	var seen strings.Builder
	n, _ := resp.Body.Read(buf)
	seen.Write(buf[:n])
	if !strings.Contains(seen.String(), "event: hello") {
		t.Fatalf("missing hello: %q", seen.String())
	}

	env.bus.Publish("cache.flushed", []byte(`{"catalog":"stub"}`))
	for !strings.Contains(seen.String(), "event: cache.flushed") {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, seen.String())
		}
		seen.Write(buf[:n])
	}
	if !strings.Contains(seen.String(), `data: {"catalog":"stub"}`) {
		t.Fatalf("payload missing: %q", seen.String())
	}
}
