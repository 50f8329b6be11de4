package liveserver

import (
	"sort"
	"sync"
)

// LiveServer is a regional media backend. It is immutable once constructed.
type LiveServer struct {
	ID      string `json:"id"`
	Control string `json:"control"`
	RTMP    string `json:"rtmp"`
}

// New builds a LiveServer from its bare domains: the control plane is
// reached over https and ingest is the "live" application on the RTMP host.
func New(id, rtmpDomain, controlDomain string) LiveServer {
	return LiveServer{
		ID:      id,
		Control: "https://" + controlDomain,
		RTMP:    "rtmp://" + rtmpDomain + "/live",
	}
}

// Registry maps live-server ids to servers for one deployment. Lookups never
// fail: unknown or empty ids resolve to the default server.
type Registry struct {
	mu      sync.RWMutex
	def     LiveServer
	servers map[string]LiveServer
}

// NewRegistry returns a registry whose fallback is def. def is also
// registered under its own id.
func NewRegistry(def LiveServer) *Registry {
	return &Registry{
		def:     def,
		servers: map[string]LiveServer{def.ID: def},
	}
}

// Get returns the server registered under preferredID, or the default.
func (r *Registry) Get(preferredID string) LiveServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.servers[preferredID]; ok {
		return s
	}
	return r.def
}

// Add registers s under its id, replacing any earlier registration.
// Replacing the default's id also replaces the default.
func (r *Registry) Add(s LiveServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[s.ID] = s
	if s.ID == r.def.ID {
		r.def = s
	}
}

// Default returns the fallback server.
func (r *Registry) Default() LiveServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// List returns every registered server sorted by id.
func (r *Registry) List() []LiveServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LiveServer, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
