// Package api
// Author: momentics
//
// Live state inspection for running elements.

package api

// Debug is a registry of named state probes.
type Debug interface {
	// DumpState evaluates every probe.
	DumpState() map[string]any

	// RegisterProbe adds or replaces a probe.
	RegisterProbe(name string, fn func() any)
}
