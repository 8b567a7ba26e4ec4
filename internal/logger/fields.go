package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the engine, admin
// surface, and CLI. Use these keys consistently across all log statements
// for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Nexus & Child Topology
	// ========================================================================
	KeyNexus     = "nexus"     // Nexus name
	KeyChild     = "child"     // Child name
	KeyURI       = "uri"       // Child construction URI
	KeyOperation = "operation" // Engine operation: add_child, fault_child, start_rebuild, etc.
	KeyState     = "state"     // Child or rebuild job state
	KeyReason    = "reason"    // Fault reason

	// ========================================================================
	// Block I/O
	// ========================================================================
	KeyCore      = "core"       // Channel/core index an I/O or handle is bound to
	KeyLBA       = "lba"        // Logical block address
	KeyNumBlocks = "num_blocks" // Block count for an I/O or rebuild segment
	KeyBlockSize = "block_size" // Device or nexus block size in bytes
	KeyOffset    = "offset"     // Byte offset for a read/write operation

	// ========================================================================
	// Rebuild Progress
	// ========================================================================
	KeySourceURI = "source_uri" // Rebuild source device URI
	KeyDestURI   = "dest_uri"   // Rebuild destination device URI
	KeyCopied    = "copied"     // Blocks copied so far
	KeyTotal     = "total"      // Total blocks to copy

	// ========================================================================
	// HTTP / Admin Surface
	// ========================================================================
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // HTTP request path
	KeyStatus    = "status"     // HTTP response status code
	KeyClientIP  = "client_ip"  // Admin HTTP client IP address
	KeyRequestID = "request_id" // chi request ID

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Nexus returns a slog.Attr for nexus name
func Nexus(name string) slog.Attr {
	return slog.String(KeyNexus, name)
}

// Child returns a slog.Attr for child name
func Child(name string) slog.Attr {
	return slog.String(KeyChild, name)
}

// URI returns a slog.Attr for a child construction URI
func URI(uri string) slog.Attr {
	return slog.String(KeyURI, uri)
}

// Operation returns a slog.Attr for an engine operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// State returns a slog.Attr for a child or rebuild job state
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// Reason returns a slog.Attr for a fault reason
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

// Core returns a slog.Attr for a channel/core index
func Core(core int) slog.Attr {
	return slog.Int(KeyCore, core)
}

// LBA returns a slog.Attr for a logical block address
func LBA(lba uint64) slog.Attr {
	return slog.Uint64(KeyLBA, lba)
}

// NumBlocks returns a slog.Attr for a block count
func NumBlocks(n uint64) slog.Attr {
	return slog.Uint64(KeyNumBlocks, n)
}

// BlockSize returns a slog.Attr for a block size in bytes
func BlockSize(n uint32) slog.Attr {
	return slog.Any(KeyBlockSize, n)
}

// Offset returns a slog.Attr for a byte offset
func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

// SourceURI returns a slog.Attr for a rebuild source device URI
func SourceURI(uri string) slog.Attr {
	return slog.String(KeySourceURI, uri)
}

// DestURI returns a slog.Attr for a rebuild destination device URI
func DestURI(uri string) slog.Attr {
	return slog.String(KeyDestURI, uri)
}

// Copied returns a slog.Attr for blocks copied so far
func Copied(n uint64) slog.Attr {
	return slog.Uint64(KeyCopied, n)
}

// Total returns a slog.Attr for total blocks to copy
func Total(n uint64) slog.Attr {
	return slog.Uint64(KeyTotal, n)
}

// Method returns a slog.Attr for an HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path returns a slog.Attr for an HTTP request path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Status returns a slog.Attr for an HTTP response status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// ClientIP returns a slog.Attr for admin HTTP client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// RequestID returns a slog.Attr for a chi request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}
