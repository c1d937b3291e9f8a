package lock

import "errors"

// Sentinel errors returned by the lock service.  Conflicts are not errors:
// a rejected batch is reported through Result so the caller can show the
// buyer which seats are taken and by whom.
var (
	// ErrInvalidRequest covers malformed input: an empty seat list, a
	// zero seat ID or a missing owner token.  It is raised before any
	// store interaction.
	ErrInvalidRequest = errors.New("invalid lock request")

	// ErrStoreUnavailable means the backing store could not be reached
	// within the operation deadline.  Acquire and extend surface it to
	// the caller (fail-closed); release and inspect degrade instead.
	ErrStoreUnavailable = errors.New("lock store unavailable")
)
