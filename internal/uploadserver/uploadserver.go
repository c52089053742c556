// Package uploadserver implements the coordinator-side frame-upload
// receiver, per spec.md §4.8. Destination directories are resolved by
// job_id, per the spec.md §9 extension to the upload header.
//
// Grounded on the accept-loop + per-connection-goroutine idiom visible
// across the pack (a listener goroutine handing connections off to
// worker goroutines) and on the teacher's reporter event-emission
// pattern for progress notification.
package uploadserver

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/renderfarm/farmd/internal/wire"
)

// FrameReceived is emitted on every successfully written frame.
type FrameReceived struct {
	ScenePath string
	Frame     int
}

// Registry maps job_id to the scene's output directory, populated by
// the scheduler at dispatch time.
type Registry struct {
	mu      sync.RWMutex
	byJobID map[string]jobTarget
}

type jobTarget struct {
	scenePath string
	outputDir string
}

// NewRegistry creates an empty job->output-dir registry.
func NewRegistry() *Registry {
	return &Registry{byJobID: make(map[string]jobTarget)}
}

// Register records where frames uploaded under jobID should land.
func (r *Registry) Register(jobID, scenePath, outputDir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byJobID[jobID] = jobTarget{scenePath: scenePath, outputDir: outputDir}
}

// Unregister removes a job's destination mapping once its scene's
// session is complete.
func (r *Registry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byJobID, jobID)
}

func (r *Registry) lookup(jobID string) (jobTarget, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byJobID[jobID]
	return t, ok
}

// Server accepts frame-upload connections and writes payloads to the
// directory registered for each upload's job_id.
type Server struct {
	ListenPort int
	Registry   *Registry
	OnFrame    func(FrameReceived)
	log        func(format string, args ...any)
}

// New creates an upload Server.
func New(listenPort int, registry *Registry, onFrame func(FrameReceived), log func(format string, args ...any)) *Server {
	if onFrame == nil {
		onFrame = func(FrameReceived) {}
	}
	if log == nil {
		log = func(string, ...any) {}
	}
	return &Server{ListenPort: listenPort, Registry: registry, OnFrame: onFrame, log: log}
}

// Serve accepts connections indefinitely until stop is closed, per
// spec.md §4.8/§5.
func (s *Server) Serve(stop <-chan struct{}) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.ListenPort))
	if err != nil {
		return fmt.Errorf("upload server bind failed: %w", err)
	}
	defer ln.Close()

	go func() {
		<-stop
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				return fmt.Errorf("upload server accept failed: %w", err)
			}
		}
		go s.handleConn(conn)
	}
}

// handleConn reads one frame upload and writes it to the scene's
// output directory. Errors are logged and the connection dropped;
// the server never crashes on a bad upload, per spec.md §4.8.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var hdr wire.UploadHeader
	if err := wire.ReadHeader(conn, conn, &hdr); err != nil {
		s.log("upload header read failed: %v", err)
		return
	}

	target, ok := s.Registry.lookup(hdr.JobID)
	if !ok {
		s.log("upload for unknown job_id %s dropped", hdr.JobID)
		return
	}

	destPath := filepath.Join(target.outputDir, hdr.Filename)
	f, err := os.Create(destPath)
	if err != nil {
		s.log("failed to create %s: %v", destPath, err)
		return
	}
	defer f.Close()

	if _, err := wire.ReadFile(conn, conn, f); err != nil {
		s.log("failed to write frame payload to %s: %v", destPath, err)
		return
	}

	s.OnFrame(FrameReceived{ScenePath: target.scenePath, Frame: hdr.Frame})
}
