package types

import "time"

// ClientConfig describes how to spawn and talk to one language server. The
// language resolution collaborator (config + language registry) produces it;
// the session layer consumes it without reading anything else from disk.
type ClientConfig struct {
	Command               string
	Args                  []string
	WorkingDir            string
	InitializationOptions interface{}

	// RequestTimeout bounds every request except initialize. Zero means the
	// session default.
	RequestTimeout time.Duration
	// InitializeTimeout bounds the initialize request only. Zero means the
	// session default.
	InitializeTimeout time.Duration
}
