package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
)

// Catalog est l'adaptateur d'un catalogue de sous-titres.
//
// Les langues des enregistrements renvoyés sont déjà normalisées.
// Une ressource absente renvoie ErrNotFound.
type Catalog interface {
	Name() string
	// SearchShows renvoie les séries candidates pour title (tout l'index pour
	// certains catalogues).
	SearchShows(ctx context.Context, title string) ([]domain.ShowIndexEntry, error)
	// ListingKey donne la clé de cache d'un listing; la granularité dépend du catalogue.
	ListingKey(q domain.ListingQuery) string
	FetchListing(ctx context.Context, q domain.ListingQuery) ([]domain.EpisodeRecord, error)
	SearchMovie(ctx context.Context, title string, year int) ([]domain.MovieRecord, error)
	// Open fait un GET (authentifié si besoin) sur ref, relatif à la base du catalogue.
	Open(ctx context.Context, ref string) (*domain.Download, error)
}

// Authenticator est implémenté par les catalogues qui exigent une session.
type Authenticator interface {
	EnsureSession(ctx context.Context) error
}

// LanguageNormalizer ramène un libellé libre à un code canonique.
type LanguageNormalizer interface {
	Normalize(raw string) (string, bool)
}

// CredentialSource fournit les identifiants courants du catalogue.
type CredentialSource interface {
	Credentials(ctx context.Context) (domain.Credentials, error)
}
