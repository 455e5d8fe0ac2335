package rsu

import "errors"

// Domain errors for the rsu package.
//
// Not-found and conflict errors propagate to the API boundary unchanged:
//
//	if errors.Is(err, rsu.ErrRSUExists) {
//	    // 409
//	}
var (
	// ErrRSUNotFound is returned when a device id or ESN does not exist.
	ErrRSUNotFound = errors.New("rsu: not found")

	// ErrTmpNotFound is returned when a provisional device id does not exist.
	ErrTmpNotFound = errors.New("rsu: provisional device not found")

	// ErrEdgeNotFound is returned when an edge node id does not exist.
	ErrEdgeNotFound = errors.New("rsu: edge node not found")

	// ErrRSUExists is returned when a device with the same ESN is already registered.
	ErrRSUExists = errors.New("rsu: already exists")

	// ErrEdgeExists is returned when an edge node name is already taken.
	ErrEdgeExists = errors.New("rsu: edge node already exists")

	// ErrInvalidRSU is returned when device validation fails.
	ErrInvalidRSU = errors.New("rsu: invalid")
)
