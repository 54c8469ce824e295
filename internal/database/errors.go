package database

import "errors"

var (
	// ErrNotFound means the reservation id does not exist.
	ErrNotFound = errors.New("reservation not found")

	// ErrSpaceNotFound means the referenced space is not in the catalog.
	ErrSpaceNotFound = errors.New("space not found")

	// ErrPlaceNotFound means the referenced place is not in the catalog.
	ErrPlaceNotFound = errors.New("place not found")

	// ErrStatusFinal rejects a transition out of CANCELLED or COMPLETED.
	ErrStatusFinal = errors.New("reservation status is final")
)
