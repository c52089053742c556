package reporter

import "github.com/renderfarm/farmd/internal/logging"

// LogReporter writes session events to a *logging.Logger, tagging
// scene- and job-scoped events with their scene path / job id so a
// multi-scene, multi-worker run can be grepped apart after the fact.
type LogReporter struct {
	logger *logging.Logger
}

// NewLogReporter creates a log reporter writing through logger.
func NewLogReporter(logger *logging.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) SceneQueued(s SceneSummary) {
	if s.AlreadyDone {
		r.logger.SceneEvent(s.Path, "all frames [%d-%d] already rendered", s.First, s.Last)
		return
	}
	r.logger.SceneEvent(s.Path, "range [%d-%d], %d frame(s) missing", s.First, s.Last, s.MissingCount)
}

func (r *LogReporter) ChunkPlanned(s ChunkPlanSummary) {
	r.logger.SceneEvent(s.ScenePath, "planned %d chunk(s), %d dependenc(ies)", s.ChunkCount, s.Dependencies)
}

func (r *LogReporter) WorkerDiscovered(s WorkerSummary) {
	r.logger.Info("worker %s at %s:%d (selected=%v)", s.Hostname, s.IP, s.JobPort, s.Selected)
}

func (r *LogReporter) JobDispatched(s JobSummary) {
	r.logger.JobEvent(s.JobID, s.Target, "scene=%s frames=%d-%d", s.ScenePath, s.Start, s.End)
}

func (r *LogReporter) Progress(p ProgressSnapshot) {
	r.logger.SceneEvent(p.ScenePath, "progress %d/%d (%.1f%%)", p.CompletedInSession, p.TotalMissing, p.Percent)
}

func (r *LogReporter) SceneComplete(s SceneOutcome) {
	if s.Completed {
		r.logger.SceneEvent(s.ScenePath, "complete")
		return
	}
	r.logger.Warn("scene=%s incomplete: %s", s.ScenePath, s.Reason)
}

func (r *LogReporter) SessionComplete(message string) {
	r.logger.Info("session complete: %s", message)
}

func (r *LogReporter) Warning(message string) {
	r.logger.Warn("%s", message)
}

func (r *LogReporter) Error(err ReporterError) {
	r.logger.ErrorLog("%s: %s", err.Title, err.Message)
	if err.Context != "" {
		r.logger.ErrorLog("  context: %s", err.Context)
	}
	if err.Suggestion != "" {
		r.logger.ErrorLog("  suggestion: %s", err.Suggestion)
	}
}

func (r *LogReporter) Verbose(message string) {
	r.logger.Debug("%s", message)
}
