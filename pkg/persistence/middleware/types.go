// Package middleware provides ports.TreeStore decorators that add
// cross-cutting persistence behavior without touching the adapters.
package middleware

import "github.com/reveriehq/reverie/pkg/ports"

// Middleware decorates a TreeStore.
type Middleware func(next ports.TreeStore) ports.TreeStore

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(store ports.TreeStore, mws ...Middleware) ports.TreeStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
