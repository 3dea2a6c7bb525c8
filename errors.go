package tapfix

import "errors"

var (
	// ErrTapNotFound is returned when an operation names a tap that isn't
	// registered.
	ErrTapNotFound = errors.New("tap not found")

	// ErrMissingTap is returned by AddConfig and AddFilter when the named
	// entry doesn't exist to merge into.
	ErrMissingTap = errors.New("missing tap entry")

	// ErrUnknownOption is returned by a strict registry for keys outside a
	// tap variant's catalog.
	ErrUnknownOption = errors.New("unknown option")

	// ErrUnknownInputType is returned for input types other than pcap, flow
	// and dnstap.
	ErrUnknownInputType = errors.New("unknown input type")

	// ErrScenarioNotFound is returned for unknown or expired scenario IDs.
	ErrScenarioNotFound = errors.New("scenario not found")
)
