package domain

import "strings"

type MediaKind string

const (
	KindEpisode MediaKind = "episode"
	KindMovie   MediaKind = "movie"
)

type SearchRequest struct {
	Title    string `json:"title"`
	Season   *int   `json:"season,omitempty"`
	Episode  *int   `json:"episode,omitempty"`
	Year     int    `json:"year,omitempty"`
	Language string `json:"language"`
}

// Kind: une saison ou un épisode renseigné désigne un épisode.
func (r SearchRequest) Kind() MediaKind {
	if r.Season != nil || r.Episode != nil {
		return KindEpisode
	}
	return KindMovie
}

// Searchable indique si la requête contient de quoi interroger un catalogue.
func (r SearchRequest) Searchable() bool {
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Language) == "" {
		return false
	}
	if r.Kind() == KindEpisode {
		return r.Season != nil && r.Episode != nil && *r.Season >= 0 && *r.Episode > 0
	}
	return true
}

// SearchStep est l'étape courante d'une recherche. Les étapes s'enchaînent
// strictement dans l'ordre; toute étape peut aller directement à Done.
type SearchStep string

const (
	StepValidate         SearchStep = "validate"
	StepResolveCatalogID SearchStep = "resolve_catalog_id"
	StepFetchListing     SearchStep = "fetch_listing"
	StepExtract          SearchStep = "extract"
	StepFilterByLanguage SearchStep = "filter_by_language"
	StepDone             SearchStep = "done"
)

var stepOrder = []SearchStep{StepValidate, StepResolveCatalogID, StepFetchListing, StepExtract, StepFilterByLanguage, StepDone}

func (s SearchStep) IsTerminal() bool { return s == StepDone }

func CanTransition(from, to SearchStep) bool {
	if from == StepDone {
		return false
	}
	if to == StepDone {
		return true
	}
	for i, s := range stepOrder[:len(stepOrder)-1] {
		if s == from {
			return stepOrder[i+1] == to
		}
	}
	return false
}
