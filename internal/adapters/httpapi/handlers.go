package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/subseek/internal/app"
	"github.com/Guilhem-Bonnet/subseek/internal/buildinfo"
	"github.com/Guilhem-Bonnet/subseek/internal/httpjson"
)

const defaultRequestTimeout = 30 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.requestLimiter != nil {
		body["limiter"] = s.requestLimiter.Stats()
	}
	httpjson.Write(w, http.StatusOK, body)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}

// writeAppError traduit une erreur applicative en statut HTTP.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := app.ErrorCode(err)
	status := http.StatusInternalServerError
	switch {
	case app.IsCanceled(err):
		status, code = http.StatusGatewayTimeout, "canceled"
	case code == app.CodeInvalidID, code == app.CodeInvalidRequest:
		status = http.StatusBadRequest
	case code == app.CodeUnknownCatalog:
		status = http.StatusNotFound
	case code == app.CodeTransport:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Warn().Err(err).Int("status", status).Msg("request failed")
	}
	httpjson.WriteCodedError(w, status, code, err.Error())
}
