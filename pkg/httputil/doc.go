// Package httputil provides HTTP handler utilities for consistent error
// responses, JSON encoding/decoding and the shared middleware chain.
//
// Every error leaving the service uses one body shape:
//
//	{"error": {"code": "UNAUTHORIZED", "message": "Not authenticated"}}
//
// Handlers write it with WriteAPIError or the per-code helpers.
package httputil
