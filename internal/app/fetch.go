package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/ports"
)

// DefaultMaxSubtitleBytes borne la taille d'un sous-titre téléchargé.
const DefaultMaxSubtitleBytes = 8 << 20

var errTooLarge = errors.New("payload too large")

// FetchService télécharge un candidat et ne renvoie que du contenu sous-titre.
type FetchService struct {
	catalog  ports.Catalog
	bus      ports.EventBus
	logger   zerolog.Logger
	maxBytes int64
}

func NewFetchService(catalog ports.Catalog, bus ports.EventBus, logger zerolog.Logger) *FetchService {
	return &FetchService{
		catalog:  catalog,
		bus:      bus,
		logger:   logger.With().Str("catalog", catalog.Name()).Logger(),
		maxBytes: DefaultMaxSubtitleBytes,
	}
}

func (f *FetchService) WithMaxBytes(n int64) *FetchService {
	if n > 0 {
		f.maxBytes = n
	}
	return f
}

// Fetch renvoie (fichier, true, nil) ou (_, false, nil) quand il n'y a rien
// d'exploitable (absent, auth refusée, contenu non-srt). Annulation et
// transport remontent en erreur; un id mal formé aussi (CodeInvalidID).
func (f *FetchService) Fetch(ctx context.Context, candidateID string) (domain.SubtitleFile, bool, error) {
	ref, lang, err := DecodeCandidateID(candidateID)
	if err != nil {
		return domain.SubtitleFile{}, false, err
	}
	logger := f.logger.With().Str("ref", ref).Str("language", lang).Logger()

	data, err := f.download(ctx, ref)
	if err != nil {
		if reason, ok := recoverable(err); ok {
			logger.Info().Str("reason", reason).Msg("subtitle unavailable")
			return domain.SubtitleFile{}, false, nil
		}
		if errors.Is(err, errContentMismatch) || errors.Is(err, errTooLarge) {
			logger.Warn().Err(err).Msg("discarding non-subtitle payload")
			return domain.SubtitleFile{}, false, nil
		}
		if IsCanceled(err) {
			return domain.SubtitleFile{}, false, err
		}
		return domain.SubtitleFile{}, false, classify("fetch "+f.catalog.Name(), err)
	}

	publishJSON(f.bus, ports.TopicSubtitleFetched, map[string]any{
		"catalog":  f.catalog.Name(),
		"language": lang,
		"bytes":    len(data),
	})
	return domain.SubtitleFile{
		Language: lang,
		Format:   domain.FormatSRT,
		Payload:  bytes.NewReader(data),
	}, true, nil
}

var errContentMismatch = errors.New("content mismatch")

func (f *FetchService) download(ctx context.Context, ref string) ([]byte, error) {
	if auth, ok := f.catalog.(ports.Authenticator); ok {
		if err := auth.EnsureSession(ctx); err != nil {
			return nil, err
		}
	}

	dl, err := f.catalog.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer dl.Body.Close()

	ct := strings.ToLower(strings.TrimSpace(dl.ContentType))
	if ct != "" && !strings.Contains(ct, domain.FormatSRT) {
		return nil, errors.Join(errContentMismatch, errors.New("content-type "+dl.ContentType))
	}

	// Lecture complète: l'appelant veut un flux relisible.
	data, err := io.ReadAll(io.LimitReader(dl.Body, f.maxBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.Join(errContentMismatch, errors.New("empty payload"))
	}
	if ct == "" {
		if m := mimetype.Detect(data); !looksLikeSubtitle(m) {
			return nil, errors.Join(errContentMismatch, errors.New("detected "+m.String()))
		}
	}
	return data, nil
}

func looksLikeSubtitle(m *mimetype.MIME) bool {
	return m.Is("application/x-subrip") || m.Is("text/plain")
}
