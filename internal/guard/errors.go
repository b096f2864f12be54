package guard

import "errors"

// Engine error classes. The engine never surfaces these to a request (every
// analysis failure degrades to fail-open admission), but they classify log
// records and constructor errors.
var (
	// ErrConfiguration marks an unusable configuration; the only error
	// class New returns.
	ErrConfiguration = errors.New("guard: invalid configuration")

	// ErrAnalysis classifies a recovered failure inside pattern, burst or
	// rate analysis. The affected check is treated as "no violation".
	ErrAnalysis = errors.New("guard: analysis failed")

	// ErrStateCorruption classifies a client entry that had to be dropped
	// and rebuilt.
	ErrStateCorruption = errors.New("guard: client state corrupted")

	// ErrIdentityUnresolvable classifies a request whose client identity
	// could not be derived; such requests share the unknown bucket.
	ErrIdentityUnresolvable = errors.New("guard: client identity unresolvable")
)
