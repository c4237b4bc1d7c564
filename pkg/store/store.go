// Package store defines persistence for surfaces, the action log and the
// audit log. Implementations must give identical semantics across backends:
// surface updates are conditional on the expected version, and logs are
// append-only.
package store

import (
	"github.com/wilhg/a2ui/pkg/errmodel"
)

// Sentinel errors. Implementations wrap them with %w so callers can use
// errors.Is and errmodel.From alike.
var (
	ErrNotFound = errmodel.NotFound("surface_not_found", "surface not found or access denied", nil)
	ErrConflict = errmodel.Conflict("version_conflict", "surface was modified concurrently; retry", nil)
	ErrExists   = errmodel.Conflict("surface_exists", "surface already exists", nil)
)
