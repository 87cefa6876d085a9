package oracle

import "hash/fnv"

// Router maps agent identifiers deterministically onto a fixed ordered
// pool of local backends and exposes the single coordinator backend.
// Routing is pure: the same agent id always lands on the same backend
// for the lifetime of the pool configuration.
type Router struct {
	coordinator Oracle
	pool        []Oracle
}

// NewRouter builds a router. The pool must be non-empty for any
// architecture that addresses local oracles.
func NewRouter(coordinator Oracle, pool []Oracle) *Router {
	return &Router{coordinator: coordinator, pool: pool}
}

// Coordinator returns the always-selected coordinator backend.
func (r *Router) Coordinator() Oracle { return r.coordinator }

// PoolSize returns the number of local backends.
func (r *Router) PoolSize() int { return len(r.pool) }

// Route selects the local backend for an agent by string hash reduced
// modulo the pool size.
func (r *Router) Route(agentID string) Oracle {
	h := fnv.New32a()
	h.Write([]byte(agentID))
	return r.pool[int(h.Sum32())%len(r.pool)]
}
