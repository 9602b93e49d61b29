package quarantine

import "errors"

// ErrRecordNotFound is returned by lookups when no index record matches.
// Callers distinguish it from generic failures for exit-code purposes.
var ErrRecordNotFound = errors.New("quarantine record not found")
