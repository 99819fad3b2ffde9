package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/subseek/internal/app"
	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/httpjson"
)

// Plafond des réglages de concurrence.
const maxSettingsConcurrency = 32

type SettingsHandler struct {
	settings *app.SettingsService
	onPut    func(domain.Settings)
}

func NewSettingsHandler(settings *app.SettingsService, onPut func(domain.Settings)) *SettingsHandler {
	return &SettingsHandler{settings: settings, onPut: onPut}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.put)
	})
}

// Le mot de passe n'est jamais renvoyé en clair.
func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, s.Redacted())
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()

	var s domain.Settings
	if err := dec.Decode(&s); err != nil {
		httpjson.WriteCodedError(w, http.StatusBadRequest, app.CodeInvalidRequest, "invalid json")
		return
	}
	if msg := validateSettings(s); msg != "" {
		httpjson.WriteCodedError(w, http.StatusBadRequest, app.CodeInvalidRequest, msg)
		return
	}

	updated, err := h.settings.Put(r.Context(), s)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if h.onPut != nil {
		h.onPut(updated)
	}
	httpjson.Write(w, http.StatusOK, updated.Redacted())
}

// validateSettings renvoie "" si s est acceptable. Zéro veut dire "défaut".
func validateSettings(s domain.Settings) string {
	switch {
	case s.MaxConcurrentRequests < 0, s.MaxConcurrentRequests > maxSettingsConcurrency:
		return "maxConcurrentRequests out of range"
	case s.MaxBatchWorkers < 0, s.MaxBatchWorkers > maxSettingsConcurrency:
		return "maxBatchWorkers out of range"
	case s.CatalogPassword != "" && s.CatalogUsername == "":
		return "catalogPassword requires catalogUsername"
	}
	return ""
}
