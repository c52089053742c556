// Package workerserver implements the worker-side job server: accept
// jobs, stage payload to a per-job directory, drive the renderer, and
// upload saved frames, per spec.md §4.7.
//
// Grounded on the teacher's internal/util disk-space preflight
// (EnsureDirectoryWritable/CheckDiskSpace) for job staging directories,
// and its worker-semaphore idiom (bounded concurrency via a buffered
// channel) for serial-per-connection job execution.
package workerserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/renderfarm/farmd/internal/farmerr"
	"github.com/renderfarm/farmd/internal/renderdriver"
	"github.com/renderfarm/farmd/internal/util"
	"github.com/renderfarm/farmd/internal/wire"
)

// Config configures the worker job server.
type Config struct {
	ListenPort    int
	JobsDir       string
	RendererExe   string
	ScriptFlag    string
	AutoexecFlag  string
	MaxConcurrent int // jobs executed concurrently; spec.md permits 1
}

// Server accepts job-dispatch connections and executes them.
type Server struct {
	cfg Config
	sem chan struct{}
	log func(format string, args ...any)
}

// New creates a worker job Server.
func New(cfg Config, log func(format string, args ...any)) *Server {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if log == nil {
		log = func(string, ...any) {}
	}
	return &Server{cfg: cfg, sem: make(chan struct{}, cfg.MaxConcurrent), log: log}
}

// Serve accepts job-dispatch connections on cfg.ListenPort until stop
// is closed. Every accept loop checks the shutdown signal between
// accepts, per spec.md §5.
func (s *Server) Serve(ctx context.Context, stop <-chan struct{}) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.ListenPort))
	if err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "worker job server bind failed", err)
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
				return farmerr.Wrap(farmerr.NetworkError, "worker job server accept failed", err)
			}
		}
		s.sem <- struct{}{}
		go func() {
			defer func() { <-s.sem }()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn runs one job connection through
// AcceptingHeader -> ReadingBlend -> ReadingDependencies -> Rendering -> Uploading -> Done|Failed.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var hdr wire.JobHeader
	if err := wire.ReadHeader(conn, conn, &hdr); err != nil {
		s.log("job header read failed: %v", err)
		return
	}

	jobDir := filepath.Join(s.cfg.JobsDir, hdr.JobID)
	if err := util.EnsureDirectory(jobDir); err != nil {
		s.log("job %s: failed to create staging dir: %v", hdr.JobID, err)
		return
	}
	util.CheckDiskSpace(jobDir, s.log)

	scenePath := filepath.Join(jobDir, hdr.File)
	if err := receiveFile(conn, scenePath); err != nil {
		s.log("job %s: failed to stage scene file: %v", hdr.JobID, err)
		return
	}

	for _, depRel := range hdr.Dependencies {
		depPath := filepath.Join(jobDir, depRel)
		if err := util.EnsureDirectory(filepath.Dir(depPath)); err != nil {
			s.log("job %s: failed to create dependency dir for %s: %v", hdr.JobID, depRel, err)
			return
		}
		if err := receiveFile(conn, depPath); err != nil {
			s.log("job %s: failed to stage dependency %s: %v", hdr.JobID, depRel, err)
			return
		}
	}

	// Job-dispatch connection is closed by the coordinator after the
	// last byte; we are done reading from it regardless.
	_ = conn.Close()

	framesDir := filepath.Join(jobDir, "frames")
	if err := util.EnsureDirectory(framesDir); err != nil {
		s.log("job %s: failed to create frames dir: %v", hdr.JobID, err)
		return
	}

	uploaded := map[int]bool{}
	uploadTarget := fmt.Sprintf("%s:%d", hdr.UploadHost, hdr.UploadPort)

	onEvent := func(ev renderdriver.Event) {
		if fs, ok := ev.(renderdriver.FrameSaved); ok {
			path, ok := mostRecentFrameFile(framesDir)
			if ok {
				if err := uploadFrame(uploadTarget, hdr.JobID, fs.Frame, path); err != nil {
					s.log("job %s: upload of frame %d failed: %v", hdr.JobID, fs.Frame, err)
					return
				}
				uploaded[fs.Frame] = true
			}
		}
	}

	outcome, err := renderdriver.Run(ctx, renderdriver.Options{
		RendererExe:  s.cfg.RendererExe,
		ScenePath:    scenePath,
		Start:        hdr.Start,
		End:          hdr.End,
		OutputDir:    framesDir,
		RunScript:    hdr.RunScript,
		ScriptName:   hdr.ScriptName,
		AutoexecFlag: s.cfg.AutoexecFlag,
		ScriptFlag:   s.cfg.ScriptFlag,
	}, onEvent)
	if err != nil && outcome != renderdriver.Cancelled {
		s.log("job %s: renderer error: %v", hdr.JobID, err)
	}

	if outcome == renderdriver.Cancelled {
		return
	}

	// Safety sweep: upload anything the stream missed, per spec.md §4.7.
	sweepFrames(framesDir, uploaded, func(frame int, path string) {
		if err := uploadFrame(uploadTarget, hdr.JobID, frame, path); err != nil {
			s.log("job %s: sweep upload of frame %d failed: %v", hdr.JobID, frame, err)
		}
	})
}

func receiveFile(conn net.Conn, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = wire.ReadFile(conn, conn, f)
	return err
}

// mostRecentFrameFile returns the most recently modified regular file
// in dir, per spec.md §4.7 ("select the most recently modified file").
func mostRecentFrameFile(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var best string
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	return best, best != ""
}

// sweepFrames iterates frames/ in sorted order, calling onFrame for
// any file whose frame number isn't already marked uploaded.
func sweepFrames(framesDir string, uploaded map[int]bool, onFrame func(frame int, path string)) {
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		n, ok := frameNumberFromName(name)
		if !ok || uploaded[n] {
			continue
		}
		onFrame(n, filepath.Join(framesDir, name))
	}
}

func frameNumberFromName(name string) (int, bool) {
	stem := name
	if ext := filepath.Ext(name); ext != "" {
		stem = name[:len(name)-len(ext)]
	}
	n := 0
	any := false
	for _, c := range stem {
		if c < '0' || c > '9' {
			return 0, false
		}
		any = true
		n = n*10 + int(c-'0')
	}
	return n, any
}

func uploadFrame(target, jobID string, frame int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", target, 10*time.Second)
	if err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "failed to dial upload endpoint", err)
	}
	defer conn.Close()

	hdr := wire.UploadHeader{JobID: jobID, Frame: frame, Filename: filepath.Base(path)}
	if err := wire.WriteHeader(conn, hdr); err != nil {
		return err
	}
	return wire.WriteFile(conn, uint64(info.Size()), f)
}
