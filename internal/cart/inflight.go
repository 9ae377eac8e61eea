package cart

import "sync"

// inflight tracks which users have a cart mutation running. The UI cannot
// stop a double-click from producing two requests, so the second one is
// rejected here instead of racing the first to the database.
type inflight struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func (g *inflight) tryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy == nil {
		g.busy = make(map[string]struct{})
	}
	if _, ok := g.busy[key]; ok {
		return false
	}
	g.busy[key] = struct{}{}
	return true
}

func (g *inflight) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, key)
}
