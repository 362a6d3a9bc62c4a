package capability

import "errors"

var (
	// ErrNotFound is returned when no capability has the requested name.
	ErrNotFound = errors.New("capability not found")

	// ErrDuplicateName is returned when registering a name that is already
	// present.
	ErrDuplicateName = errors.New("duplicate capability name")

	// ErrInvalidDescriptor is returned for descriptors that cannot be
	// registered (missing name or handler, bad category, bad schema).
	ErrInvalidDescriptor = errors.New("invalid capability descriptor")

	// ErrInvalidArguments is returned when arguments do not satisfy the
	// capability's parameter schema.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrBuilt is returned by Builder methods once Build has been called.
	ErrBuilt = errors.New("registry already built")
)
