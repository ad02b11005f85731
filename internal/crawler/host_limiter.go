package crawler

import (
	"sync"
)

// HostLimiter caps how many distinct hosts under one root domain a crawl
// may enter. It only applies when the crawl is allowed to leave the seed host.
type HostLimiter struct {
	maxPerRoot int
	mu         sync.Mutex
	// root domain -> hosts admitted
	hosts map[string]map[string]struct{}
}

// NewHostLimiter creates a limiter admitting maxPerRoot hosts per root domain
func NewHostLimiter(maxPerRoot int) *HostLimiter {
	return &HostLimiter{
		maxPerRoot: maxPerRoot,
		hosts:      make(map[string]map[string]struct{}),
	}
}

// Allow admits host if it is already known or its root domain still has room
func (hl *HostLimiter) Allow(host string) bool {
	root := ExtractRootDomain(host)

	hl.mu.Lock()
	defer hl.mu.Unlock()

	set := hl.hosts[root]
	if set == nil {
		set = make(map[string]struct{})
		hl.hosts[root] = set
	}
	if _, ok := set[host]; ok {
		return true
	}
	if len(set) >= hl.maxPerRoot {
		return false
	}
	set[host] = struct{}{}
	return true
}

// Count returns the number of hosts admitted under root
func (hl *HostLimiter) Count(root string) int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.hosts[root])
}
