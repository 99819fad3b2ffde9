package app

import (
	"context"
	"errors"

	"github.com/Guilhem-Bonnet/subseek/internal/ports"
	"github.com/Guilhem-Bonnet/subseek/internal/session"
)

var ErrNotFound = ports.ErrNotFound

// Codes stables exposés par l'API.
const (
	CodeInvalidID      = "invalid_id"
	CodeInvalidRequest = "invalid_request"
	CodeTransport      = "transport"
	CodeUnknownCatalog = "unknown_catalog"
)

// CodedError associe un code stable à une erreur.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

// ErrorCode renvoie le code d'une CodedError de la chaîne, ou "".
func ErrorCode(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCanceled: l'opération a été annulée ou a expiré.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// recoverable indique les erreurs ramenées à un résultat vide.
func recoverable(err error) (string, bool) {
	var af *session.AuthFailure
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return "not found", true
	case errors.Is(err, ports.ErrUnsupported):
		return "unsupported", true
	case errors.As(err, &af):
		return "auth failure: " + string(af.Reason), true
	}
	return "", false
}

// classify enveloppe les erreurs de transport; l'annulation et le reste passent tels quels.
func classify(op string, err error) error {
	if err == nil || IsCanceled(err) {
		return err
	}
	if session.IsTransient(err) {
		return &CodedError{Code: CodeTransport, Message: op, Err: err}
	}
	return err
}
