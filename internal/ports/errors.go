package ports

import "errors"

// ErrNotFound: absent côté catalogue (404 ou équivalent) ou en base.
var ErrNotFound = errors.New("not found")

// ErrUnsupported: le catalogue ne sait pas répondre à ce type de requête.
var ErrUnsupported = errors.New("unsupported")
