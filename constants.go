package ltx

import "github.com/ossexec/ltxd/internal/constants"

// Re-exported protocol constants for callers that embed Agent without
// reaching into internal/constants directly.
const (
	ProtocolVersion = constants.ProtocolVersion
	MaxSlots        = constants.MaxSlots
	BufferCapacity  = constants.BufferCapacity
)
