package repository

import "errors"

// ErrGuardBusy means the admission guard for a key could not be acquired
// within the configured timeout. It is a transient condition, not a business
// rejection; callers may retry with backoff.
var ErrGuardBusy = errors.New("admission guard busy")
