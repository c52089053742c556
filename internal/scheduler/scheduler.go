// Package scheduler composes the frame-set scanner, range algebra,
// dependency scanner, renderer driver, worker roster, and job
// protocol into the end-to-end coordinator loop described in
// spec.md §4.9.
//
// Grounded on the teacher's internal/processing orchestrator shape
// (probe + scan phases run via errgroup, then a plan is built, then
// workers run, then progress is collected), generalized from a single
// local FFMS2/SVT-AV1 pipeline to chunk-plan-then-dispatch-across-roster.
package scheduler

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/renderfarm/farmd/internal/config"
	"github.com/renderfarm/farmd/internal/depscan"
	"github.com/renderfarm/farmd/internal/farmerr"
	"github.com/renderfarm/farmd/internal/framescan"
	"github.com/renderfarm/farmd/internal/rangealgebra"
	"github.com/renderfarm/farmd/internal/renderdriver"
	"github.com/renderfarm/farmd/internal/reporter"
	"github.com/renderfarm/farmd/internal/roster"
	"github.com/renderfarm/farmd/internal/scene"
	"github.com/renderfarm/farmd/internal/uploadserver"
	"github.com/renderfarm/farmd/internal/util"
	"github.com/renderfarm/farmd/internal/wire"
)

// Dispatcher sends a job dispatch payload to a remote worker. Split
// out as an interface so tests can substitute a fake transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, addr string, hdr wire.JobHeader, sceneFile string, deps []scene.Dependency) error
}

// TCPDispatcher sends job payloads over a real TCP connection, per
// spec.md §4.6.
type TCPDispatcher struct{}

// Dispatch opens a connection to addr and writes the job header, the
// scene file, then each dependency in order.
func (TCPDispatcher) Dispatch(ctx context.Context, addr string, hdr wire.JobHeader, sceneFile string, deps []scene.Dependency) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "failed to dial worker", err)
	}
	defer conn.Close()

	if err := wire.WriteHeader(conn, hdr); err != nil {
		return err
	}

	f, err := os.Open(sceneFile)
	if err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "failed to open scene file for dispatch", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	err = wire.WriteFile(conn, uint64(info.Size()), f)
	f.Close()
	if err != nil {
		return err
	}

	for _, dep := range deps {
		df, err := os.Open(dep.LocalAbsPath)
		if err != nil {
			return farmerr.Wrap(farmerr.NetworkError, "failed to open dependency for dispatch", err)
		}
		dinfo, err := df.Stat()
		if err != nil {
			df.Close()
			return err
		}
		err = wire.WriteFile(conn, uint64(dinfo.Size()), df)
		df.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Scheduler orchestrates scene rendering across the local worker and
// the selected remote roster, per spec.md §4.9.
type Scheduler struct {
	cfg        *config.Config
	roster     *roster.Roster
	registry   *uploadserver.Registry
	rep        reporter.Reporter
	dispatcher Dispatcher
	cancelled  atomic.Bool
	localHost  string

	activeMu sync.Mutex
	active   map[string]func(uploadserver.FrameReceived)
}

// New creates a Scheduler.
func New(cfg *config.Config, rost *roster.Roster, registry *uploadserver.Registry, rep reporter.Reporter, dispatcher Dispatcher, localHost string) *Scheduler {
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	if dispatcher == nil {
		dispatcher = TCPDispatcher{}
	}
	return &Scheduler{
		cfg: cfg, roster: rost, registry: registry, rep: rep, dispatcher: dispatcher, localHost: localHost,
		active: make(map[string]func(uploadserver.FrameReceived)),
	}
}

// CancelAll sets the shared cancellation signal observed by the local
// driver (a running local render is stopped within about 100ms) and by
// runJob (jobs not yet started are skipped). Already-dispatched remote
// jobs are not aborted, per spec.md §4.9.
func (s *Scheduler) CancelAll() {
	s.cancelled.Store(true)
}

// HandleUploadedFrame routes a frame received by the coordinator's
// upload server to the running scene's progress handler, if any. Wire
// this as the uploadserver.Server's OnFrame callback.
func (s *Scheduler) HandleUploadedFrame(f uploadserver.FrameReceived) {
	s.activeMu.Lock()
	handler := s.active[f.ScenePath]
	s.activeMu.Unlock()
	if handler != nil {
		handler(f)
	}
}

// RunScene executes one scheduling session for a single scene, per
// spec.md §4.9 steps 1-8.
func (s *Scheduler) RunScene(ctx context.Context, sc *scene.Scene, introspectRangeFlag, introspectDepsFlag string) error {
	stem := util.Basename(sc.Path)
	outputDir := filepath.Join(s.cfg.OutRoot, stem)
	if err := util.EnsureDirectory(outputDir); err != nil {
		return farmerr.WithScene(farmerr.InvalidConfig, sc.Path, "failed to create output directory", err)
	}

	// Probe the frame range and scan dependencies concurrently: neither
	// depends on the other's result, mirroring the teacher's
	// processing.ProcessChunked Phase-1 errgroup fan-out.
	var first, last int
	var deps []scene.Dependency
	probeGroup, probeCtx := errgroup.WithContext(ctx)
	probeGroup.Go(func() error {
		f, l, err := renderdriver.ProbeRange(probeCtx, s.cfg.RendererExe, sc.Path, introspectRangeFlag)
		if err != nil {
			return err
		}
		first, last = f, l
		return nil
	})
	probeGroup.Go(func() error {
		scanned, err := depscan.Scan(probeCtx, s.cfg.RendererExe, sc.Path, introspectDepsFlag)
		if err != nil {
			s.rep.Warning(fmt.Sprintf("dependency scan failed for %s, proceeding without dependencies: %v", sc.Path, err))
			return nil
		}
		deps = scanned
		return nil
	})
	if err := probeGroup.Wait(); err != nil {
		if ctx.Err() != nil {
			return farmerr.Wrap(farmerr.Cancelled, "scene probe cancelled", ctx.Err())
		}
		// SceneProbeFailed skips this scene; it is reported, not returned.
		s.rep.Error(reporter.ReporterError{Title: "scene probe failed", Message: err.Error(), Context: sc.Path})
		return nil
	}
	sc.SetRange(first, last)
	sc.SetDependencies(deps)

	existing := framescan.ExistingFrames(outputDir)
	missing := rangealgebra.Missing(first, last, existing)

	if len(missing) == 0 {
		s.rep.SceneQueued(reporter.SceneSummary{Path: sc.Path, First: first, Last: last, AlreadyDone: true})
		s.rep.SceneComplete(reporter.SceneOutcome{ScenePath: sc.Path, Completed: true})
		return nil
	}
	s.rep.SceneQueued(reporter.SceneSummary{Path: sc.Path, First: first, Last: last, MissingCount: len(missing)})

	ranges := rangealgebra.ContiguousRanges(missing)
	chunks, err := rangealgebra.SplitByChunk(ranges, s.cfg.ChunkSize)
	if err != nil {
		return farmerr.Wrap(farmerr.InvalidConfig, "invalid chunk plan", err)
	}
	s.rep.ChunkPlanned(reporter.ChunkPlanSummary{ScenePath: sc.Path, ChunkCount: len(chunks), Dependencies: len(deps)})

	jobs := assignRoundRobin(stem, sc.Path, chunks, s.roster.SelectedSnapshot())

	var totalMissing = len(missing)
	var completed int64
	onFrame := func(f uploadserver.FrameReceived) {
		if f.ScenePath != sc.Path {
			return
		}
		n := atomic.AddInt64(&completed, 1)
		s.rep.Progress(reporter.ProgressSnapshot{
			ScenePath: sc.Path, TotalMissing: totalMissing, CompletedInSession: int(n),
			Percent: float32(n) / float32(totalMissing) * 100,
		})
	}

	for _, j := range jobs {
		if j.Target != "local" {
			s.registry.Register(j.JobID, sc.Path, outputDir)
		}
	}

	s.activeMu.Lock()
	s.active[sc.Path] = onFrame
	s.activeMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			return s.runJob(gctx, sc, j, outputDir, onFrame)
		})
	}
	var cancelErr error
	if err := g.Wait(); err != nil {
		if farmerr.Is(err, farmerr.Cancelled) {
			cancelErr = err
		} else {
			s.rep.Warning(fmt.Sprintf("scene %s finished with errors: %v", sc.Path, err))
		}
	}

	s.activeMu.Lock()
	delete(s.active, sc.Path)
	s.activeMu.Unlock()

	for _, j := range jobs {
		s.registry.Unregister(j.JobID)
	}

	nowExisting := framescan.ExistingFrames(outputDir)
	stillMissing := 0
	for _, m := range missing {
		if _, ok := nowExisting[m]; !ok {
			stillMissing++
		}
	}
	sceneComplete := stillMissing == 0
	s.rep.SceneComplete(reporter.SceneOutcome{ScenePath: sc.Path, Completed: sceneComplete,
		Reason: fmt.Sprintf("%d frame(s) still missing", stillMissing)})
	return cancelErr
}

func (s *Scheduler) runJob(ctx context.Context, sc *scene.Scene, j *scene.Job, outputDir string, onFrame func(uploadserver.FrameReceived)) error {
	if s.cancelled.Load() {
		j.SetState(scene.JobCancelled)
		return farmerr.New(farmerr.Cancelled, "scheduler cancelled before job start")
	}
	j.SetState(scene.JobDispatched)

	if j.Target == "local" {
		return s.runLocalJob(ctx, sc, j, outputDir, onFrame)
	}
	return s.runRemoteJob(ctx, sc, j)
}

func (s *Scheduler) runLocalJob(ctx context.Context, sc *scene.Scene, j *scene.Job, outputDir string, onFrame func(uploadserver.FrameReceived)) error {
	j.SetState(scene.JobRunning)
	span := j.SpanningRange()

	// The local renderer also stops once CancelAll is called.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for ctx.Err() == nil && !s.cancelled.Load() {
			time.Sleep(100 * time.Millisecond)
		}
		cancel()
	}()

	outcome, err := renderdriver.Run(ctx, renderdriver.Options{
		RendererExe: s.cfg.RendererExe,
		ScenePath:   sc.Path,
		Start:       span.Start,
		End:         span.End,
		OutputDir:   outputDir,
		RunScript:   s.cfg.RunScript,
		ScriptName:  s.cfg.ScriptName,
	}, func(ev renderdriver.Event) {
		if fs, ok := ev.(renderdriver.FrameSaved); ok {
			onFrame(uploadserver.FrameReceived{ScenePath: sc.Path, Frame: fs.Frame})
		}
	})

	switch outcome {
	case renderdriver.Completed:
		j.SetState(scene.JobCompleted)
		return nil
	case renderdriver.Cancelled:
		j.SetState(scene.JobCancelled)
		return err
	default:
		j.SetState(scene.JobFailed)
		s.rep.Warning(fmt.Sprintf("local render failed for %s chunk %s: %v", sc.Path, span, err))
		return nil // per spec.md §7, chunk failure does not fail the session
	}
}

func (s *Scheduler) runRemoteJob(ctx context.Context, sc *scene.Scene, j *scene.Job) error {
	j.SetState(scene.JobRunning)
	w := s.rosterWorker(j.Target)
	if w == nil {
		j.SetState(scene.JobFailed)
		s.rep.Warning(fmt.Sprintf("worker %s no longer in roster, skipping job %s", j.Target, j.JobID))
		return nil
	}

	span := j.SpanningRange()
	deps := sc.DependenciesSnapshot()
	depRel := make([]string, len(deps))
	for i, d := range deps {
		depRel[i] = d.RemoteRelPath
	}

	hdr := wire.JobHeader{
		Cmd: "render", JobID: j.JobID, File: filepath.Base(sc.Path),
		Dependencies: depRel, Start: span.Start, End: span.End,
		UploadHost: s.localHost, UploadPort: s.cfg.UploadPort,
		RunScript: s.cfg.RunScript, ScriptName: s.cfg.ScriptName,
	}

	s.rep.JobDispatched(reporter.JobSummary{JobID: j.JobID, ScenePath: sc.Path, Target: j.Target, Start: span.Start, End: span.End})

	addr := fmt.Sprintf("%s:%d", w.IP, w.JobPort)
	if err := s.dispatcher.Dispatch(ctx, addr, hdr, sc.Path, deps); err != nil {
		j.SetState(scene.JobFailed)
		s.rep.Warning(fmt.Sprintf("dispatch to %s failed for job %s: %v", addr, j.JobID, err))
		return nil
	}
	j.SetState(scene.JobDispatched)
	return nil
}

func (s *Scheduler) rosterWorker(id string) *scene.WorkerRecord {
	for _, w := range s.roster.SelectedSnapshot() {
		if w.ID == id {
			return &w
		}
	}
	return nil
}

// assignRoundRobin assigns chunks to the roster (local first, then
// selected workers in order) per spec.md §4.9/§8: chunk i goes to
// roster[i mod len(roster)]. Remote workers' chunks are coalesced into
// a single spanning job; the local worker keeps one job per chunk.
func assignRoundRobin(stem, scenePath string, chunks []scene.FrameRange, workers []scene.WorkerRecord) []*scene.Job {
	roster := append([]string{"local"}, workerIDs(workers)...)
	if len(roster) == 0 {
		roster = []string{"local"}
	}

	perTarget := map[string][]scene.FrameRange{}
	order := make([]string, 0, len(roster))
	seen := map[string]bool{}
	for i, c := range chunks {
		target := roster[i%len(roster)]
		if !seen[target] {
			seen[target] = true
			order = append(order, target)
		}
		perTarget[target] = append(perTarget[target], c)
	}

	var jobs []*scene.Job
	for _, target := range order {
		ranges := perTarget[target]
		if target == "local" {
			for _, r := range ranges {
				id := scene.JobID(stem, r.Start, r.End)
				jobs = append(jobs, scene.NewJob(id, scenePath, "local", []scene.FrameRange{r}))
			}
			continue
		}
		id := scene.JobID(stem, ranges[0].Start, ranges[len(ranges)-1].End)
		jobs = append(jobs, scene.NewJob(id, scenePath, target, ranges))
	}
	return jobs
}

func workerIDs(workers []scene.WorkerRecord) []string {
	out := make([]string, len(workers))
	for i, w := range workers {
		out[i] = w.ID
	}
	return out
}
