package batch

import "github.com/Undefine-Innovation/Qdrant-LiteRAGMCP-sub006/internal/observability"

// Logger is the logging interface accepted by OperationOptions. It is an
// alias of the internal observability logger so callers outside this module
// can still implement and pass their own logger without reaching into an
// internal package.
type Logger = observability.Logger

// NewLogger creates a logger that writes structured lines to stderr.
func NewLogger(prefix string) Logger { return observability.NewLogger(prefix) }

// NewNoopLogger creates a logger that discards everything. This is the
// default when OperationOptions.Logger is left unset.
func NewNoopLogger() Logger { return observability.NewNoopLogger() }
