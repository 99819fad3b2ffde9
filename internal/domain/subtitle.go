package domain

import (
	"bytes"
	"io"
	"time"
)

// ShowIndexEntry associe un nom affiché à l'id interne d'un catalogue.
type ShowIndexEntry struct {
	DisplayName string `json:"displayName"`
	CatalogID   string `json:"catalogId"`
}

// EpisodeRecord est une ligne de listing de saison. Jamais modifié après création.
type EpisodeRecord struct {
	Season          int
	Episode         int
	Title           string
	Language        string // normalisé (ISO 639-2/T)
	Version         string
	Completed       bool
	HearingImpaired bool
	Corrected       bool
	HD              bool
	DownloadRef     string // relatif au catalogue
	Multi           bool
	DiscoveredAt    time.Time
	DownloadCount   int // 0 si le catalogue ne le donne pas
}

type MovieRecord struct {
	Title           string
	Version         string
	Language        string
	DownloadRef     string
	HearingImpaired bool
}

// ListingQuery identifie un listing de saison côté catalogue.
type ListingQuery struct {
	ShowID   string
	Season   int
	Language string
}

const FormatSRT = "srt"

// SubtitleCandidate est un résultat de recherche, pas encore téléchargé.
// Completed est faux pour une traduction en cours.
type SubtitleCandidate struct {
	ID              string     `json:"id"`
	Catalog         string     `json:"catalog"`
	DisplayName     string     `json:"displayName"`
	LanguageCode    string     `json:"languageCode"`
	Format          string     `json:"format"`
	HearingImpaired bool       `json:"hearingImpaired"`
	Completed       bool       `json:"completed"`
	DownloadCount   int        `json:"downloadCount,omitempty"`
	DiscoveredAt    *time.Time `json:"discoveredAt,omitempty"`
}

// Download est la réponse brute d'un catalogue pour une référence.
type Download struct {
	ContentType string
	Body        io.ReadCloser
}

// SubtitleFile est un sous-titre entièrement lu en mémoire.
type SubtitleFile struct {
	Language string
	Format   string
	Payload  *bytes.Reader
}
