// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"slices"
	"sync"
)

// Object is a TL value in untyped form. The "_" key names the TL
// constructor or function.
type Object map[string]any

// Name returns the TL name stored under "_".
func (o Object) Name() string {
	s, _ := o["_"].(string)
	return s
}

// Fetcher decodes the typed result of one TL function from b.
type Fetcher func(b *Buffer) (any, error)

// Storer encodes obj into b and returns the decoder for its result.
type Storer func(b *Buffer, obj Object) (Fetcher, error)

// Registry maps TL function names to their storers. It is filled by
// generated code before any query runs.
type Registry struct {
	mu      sync.RWMutex
	storers map[string]Storer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{storers: make(map[string]Storer)}
}

// Register binds name to s, replacing any earlier binding.
func (r *Registry) Register(name string, s Storer) {
	r.mu.Lock()
	r.storers[name] = s
	r.mu.Unlock()
}

// Lookup returns the storer bound to name.
func (r *Registry) Lookup(name string) (Storer, bool) {
	r.mu.RLock()
	s, ok := r.storers[name]
	r.mu.RUnlock()
	return s, ok
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.storers))
	for name := range r.storers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}
