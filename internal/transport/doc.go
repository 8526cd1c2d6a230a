// Package transport builds the HTTP clients surfacefuzz talks to targets with.
//
// A Client dials directly or through a SOCKS5 proxy (golang.org/x/net/proxy),
// keeps a per-run cookie jar and injects the configured cookie and headers.
// EmbeddedTor starts a private Tor daemon through tornago for .onion targets,
// and IsValidV3Address checks onion hosts before a run starts.
package transport
