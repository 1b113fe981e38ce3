// File: element/property.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package element

import "sync"

// pathProperty is the path setting shared by both elements. The zero
// value is empty; constructors seed it with api.DefaultPath.
type pathProperty struct {
	mu   sync.Mutex
	path string
}

// set stores p unless it is empty; it reports whether p was taken.
func (pp *pathProperty) set(p string) bool {
	if p == "" {
		return false
	}
	pp.mu.Lock()
	pp.path = p
	pp.mu.Unlock()
	return true
}

func (pp *pathProperty) get() string {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.path
}
