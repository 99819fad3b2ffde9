package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/subseek/internal/app"
	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/httpjson"
)

const maxBatchRequests = 100

type CatalogsHandler struct {
	catalogs *app.Registry
	workers  func(r *http.Request) int
}

func NewCatalogsHandler(catalogs *app.Registry, workers func(r *http.Request) int) *CatalogsHandler {
	return &CatalogsHandler{catalogs: catalogs, workers: workers}
}

func (h *CatalogsHandler) Routes(r chi.Router) {
	r.Route("/catalogs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Route("/{catalog}", func(r chi.Router) {
			r.Get("/search", h.search)
			r.Post("/search/batch", h.batch)
			r.Get("/subtitles/{id}", h.fetch)
			r.Delete("/cache", h.flush)
		})
	})
}

type catalogInfo struct {
	Name  string         `json:"name"`
	Cache map[string]int `json:"cache"`
}

func (h *CatalogsHandler) list(w http.ResponseWriter, r *http.Request) {
	names := h.catalogs.Names()
	out := make([]catalogInfo, 0, len(names))
	for _, name := range names {
		c, err := h.catalogs.Get(name)
		if err != nil {
			continue
		}
		out = append(out, catalogInfo{Name: name, Cache: c.Search.CacheStats()})
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *CatalogsHandler) catalog(w http.ResponseWriter, r *http.Request) (*app.CatalogService, bool) {
	c, err := h.catalogs.Get(chi.URLParam(r, "catalog"))
	if err != nil {
		writeAppError(w, r, err)
		return nil, false
	}
	return c, true
}

func (h *CatalogsHandler) search(w http.ResponseWriter, r *http.Request) {
	c, ok := h.catalog(w, r)
	if !ok {
		return
	}
	req, err := parseSearchQuery(r.URL.Query())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	cands, err := c.Search.Search(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, cands)
}

func (h *CatalogsHandler) batch(w http.ResponseWriter, r *http.Request) {
	c, ok := h.catalog(w, r)
	if !ok {
		return
	}
	var body struct {
		Requests []domain.SearchRequest `json:"requests"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		httpjson.WriteCodedError(w, http.StatusBadRequest, app.CodeInvalidRequest, "invalid json")
		return
	}
	if len(body.Requests) > maxBatchRequests {
		httpjson.WriteCodedError(w, http.StatusBadRequest, app.CodeInvalidRequest, "too many requests in batch")
		return
	}
	workers := 0
	if h.workers != nil {
		workers = h.workers(r)
	}
	results, err := c.Search.SearchBatch(r.Context(), body.Requests, workers)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"results": results})
}

func (h *CatalogsHandler) fetch(w http.ResponseWriter, r *http.Request) {
	c, ok := h.catalog(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	// chi route sur RawPath quand il existe: le paramètre est encore échappé.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(id)
		if err != nil {
			httpjson.WriteCodedError(w, http.StatusBadRequest, app.CodeInvalidID, "invalid id")
			return
		}
		id = unescaped
	}

	file, found, err := c.Fetch.Fetch(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Length", strconv.FormatInt(file.Payload.Size(), 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Language+"."+file.Format+`"`)
	w.Header().Set("X-Subtitle-Language", file.Language)
	w.Header().Set("X-Subtitle-Format", file.Format)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, file.Payload)
}

func (h *CatalogsHandler) flush(w http.ResponseWriter, r *http.Request) {
	c, ok := h.catalog(w, r)
	if !ok {
		return
	}
	c.Search.FlushCache()
	w.WriteHeader(http.StatusNoContent)
}

func parseSearchQuery(q url.Values) (domain.SearchRequest, error) {
	req := domain.SearchRequest{
		Title:    strings.TrimSpace(q.Get("title")),
		Language: strings.TrimSpace(q.Get("language")),
	}
	optInt := func(key string) (*int, error) {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &app.CodedError{Code: app.CodeInvalidRequest, Message: "invalid " + key, Err: err}
		}
		return &n, nil
	}
	var err error
	if req.Season, err = optInt("season"); err != nil {
		return domain.SearchRequest{}, err
	}
	if req.Episode, err = optInt("episode"); err != nil {
		return domain.SearchRequest{}, err
	}
	year, err := optInt("year")
	if err != nil {
		return domain.SearchRequest{}, err
	}
	if year != nil {
		req.Year = *year
	}
	return req, nil
}
