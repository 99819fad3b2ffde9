package app

import (
	"sort"
	"sync"

	"github.com/Guilhem-Bonnet/subseek/internal/ports"
)

// CatalogService regroupe la recherche et le téléchargement d'un catalogue.
type CatalogService struct {
	Search *SearchService
	Fetch  *FetchService
}

func (c *CatalogService) Name() string { return c.Search.Catalog().Name() }

// Registry indexe les catalogues configurés par nom.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*CatalogService
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*CatalogService{}}
}

func (r *Registry) Register(c *CatalogService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[c.Name()] = c
}

func (r *Registry) Get(name string) (*CatalogService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	if !ok {
		return nil, &CodedError{Code: CodeUnknownCatalog, Message: "unknown catalog: " + name, Err: ports.ErrNotFound}
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
