// Package roster guards the worker roster behind a single mutex, per
// spec.md §9 ("Shared mutable roster... Model as a single owner per
// operation: either a mutex around a plain map"). Snapshots returned
// to callers are immutable copies.
package roster

import (
	"sort"
	"sync"
	"time"

	"github.com/renderfarm/farmd/internal/scene"
)

// Roster is a mutex-guarded map of discovered workers, keyed by IP.
type Roster struct {
	mu      sync.Mutex
	workers map[string]*scene.WorkerRecord
}

// New creates an empty Roster.
func New() *Roster {
	return &Roster{workers: make(map[string]*scene.WorkerRecord)}
}

// Update records a discovery reply: creates the worker record on
// first sighting, otherwise updates hostname/job_port/lastSeen
// last-write-wins, per spec.md §4.5/§5.
func (r *Roster) Update(id, hostname, ip string, jobPort int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[ip]
	if !ok {
		w = &scene.WorkerRecord{ID: id, IP: ip}
		r.workers[ip] = w
	}
	w.Hostname = hostname
	w.JobPort = jobPort
	w.LastSeen = time.Now()
}

// Select marks the worker at ip as selected (or not) for dispatch.
// A worker that was never discovered is a no-op.
func (r *Roster) Select(ip string, selected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[ip]; ok {
		w.Selected = selected
	}
}

// Snapshot returns an immutable, IP-ordered copy of every discovered
// worker, for display or enumeration purposes.
func (r *Roster) Snapshot() []scene.WorkerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]scene.WorkerRecord, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// SelectedSnapshot returns an immutable, IP-ordered copy of every
// worker currently marked selected — the dispatch roster consulted by
// the scheduler, per spec.md §4.9 step 6.
func (r *Roster) SelectedSnapshot() []scene.WorkerRecord {
	all := r.Snapshot()
	out := all[:0:0]
	for _, w := range all {
		if w.Selected {
			out = append(out, w)
		}
	}
	return out
}
