package delivery

import "errors"

var (
	// ErrIllegalStatusTransition is returned when a status cannot be reached from the current one.
	ErrIllegalStatusTransition = errors.New("illegal status transition")
	// ErrNoActiveHold is returned when a hold is expected on a holding but none exists.
	ErrNoActiveHold = errors.New("no active hold")
	// ErrConflictingHold is returned when a different request already holds the holding.
	ErrConflictingHold = errors.New("holding is held by another request")
	// ErrHoldingNotInRequest is returned when a holding is not among a request's line items.
	ErrHoldingNotInRequest = errors.New("holding is not part of the request")
	// ErrNotFound is returned by stores when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentModification is returned when a holding changed since it was read.
	ErrConcurrentModification = errors.New("holding was modified concurrently")
	// ErrHoldingRestricted is returned when a closed holding is requested without override.
	ErrHoldingRestricted = errors.New("holding is closed for requests")
	// ErrHoldingUnavailable is returned when a visitor requests a holding that is not available.
	ErrHoldingUnavailable = errors.New("holding is not available for request")
	// ErrNoHoldings is returned when a request would have no line items.
	ErrNoHoldings = errors.New("request has no holdings")
	// ErrDuplicateHolding is returned when a holding is listed twice in one request.
	ErrDuplicateHolding = errors.New("holding listed more than once")
	// ErrHoldingInUse is returned when deleting a holding that requests reference.
	ErrHoldingInUse = errors.New("holding is referenced by requests")
)
