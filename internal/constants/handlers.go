package constants

import "time"

// HTTP server constants
const (
	// RequestTimeout bounds a single API request, backfill runs included
	RequestTimeout = 10 * time.Minute

	// ShutdownTimeout is the grace period for in-flight requests on shutdown
	ShutdownTimeout = 30 * time.Second

	// MaxMultipartMemory is the in-memory part of a parsed multipart form
	MaxMultipartMemory = 32 << 20
)
