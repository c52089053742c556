package reporter

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/renderfarm/farmd/internal/util"
)

// TerminalReporter prints human-friendly colored output to the terminal
// and drives a live progress bar for the active scene.
type TerminalReporter struct {
	mu       sync.Mutex
	progress *progressbar.ProgressBar
	curScene string
	verbose  bool
	cyan     *color.Color
	green    *color.Color
	yellow   *color.Color
	red      *color.Color
	magenta  *color.Color
	bold     *color.Color
	dim      *color.Color
}

// NewTerminalReporter creates a terminal reporter with verbose mode disabled.
func NewTerminalReporter() *TerminalReporter {
	return NewTerminalReporterVerbose(false)
}

// NewTerminalReporterVerbose creates a terminal reporter with configurable verbose mode.
func NewTerminalReporterVerbose(verbose bool) *TerminalReporter {
	return &TerminalReporter{
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
}

const labelWidth = 16

func (r *TerminalReporter) printLabel(label, value string) {
	padded := fmt.Sprintf("%-*s", labelWidth, label)
	fmt.Printf("  %s %s\n", r.bold.Sprint(padded), value)
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
}

func (r *TerminalReporter) SceneQueued(s SceneSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("SCENE")
	r.printLabel("Path:", s.Path)
	r.printLabel("Range:", fmt.Sprintf("%d-%d", s.First, s.Last))
	if s.AlreadyDone {
		r.printLabel("Status:", r.green.Sprint("all frames already rendered"))
		return
	}
	r.printLabel("Missing:", fmt.Sprintf("%d frames", s.MissingCount))
}

func (r *TerminalReporter) ChunkPlanned(s ChunkPlanSummary) {
	fmt.Printf("  %s planned %d chunk(s), %d dependenc(ies) for %s\n",
		r.magenta.Sprint("›"), s.ChunkCount, s.Dependencies, util.Basename(s.ScenePath))
}

func (r *TerminalReporter) WorkerDiscovered(s WorkerSummary) {
	status := r.dim.Sprint("available")
	if s.Selected {
		status = r.green.Sprint("selected")
	}
	fmt.Printf("  %s worker %s (%s:%d) %s\n", r.magenta.Sprint("›"), s.Hostname, s.IP, s.JobPort, status)
}

func (r *TerminalReporter) JobDispatched(s JobSummary) {
	fmt.Printf("  %s dispatched %s frames %d-%d to %s\n",
		r.magenta.Sprint("›"), s.JobID, s.Start, s.End, s.Target)
}

func (r *TerminalReporter) Progress(p ProgressSnapshot) {
	r.mu.Lock()
	if r.curScene != p.ScenePath || r.progress == nil {
		r.curScene = p.ScenePath
		r.mu.Unlock()
		r.finishProgress()
		r.mu.Lock()
		r.progress = progressbar.NewOptions64(
			100,
			progressbar.OptionSetDescription(""),
			progressbar.OptionSetWidth(40),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowDescriptionAtLineEnd(),
			progressbar.OptionSetElapsedTime(false),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "Rendering [",
				BarEnd:        "]",
			}),
		)
	}
	clamped := p.Percent
	if clamped > 100 {
		clamped = 100
	}
	if clamped < 0 {
		clamped = 0
	}
	_ = r.progress.Set64(int64(clamped))
	r.progress.Describe(fmt.Sprintf("%s frames %d/%d", util.Basename(p.ScenePath), p.CompletedInSession, p.TotalMissing))
	r.mu.Unlock()
}

func (r *TerminalReporter) SceneComplete(s SceneOutcome) {
	r.finishProgress()
	if s.Completed {
		fmt.Printf("%s %s\n", r.green.Add(color.Bold).Sprint("✓"), r.bold.Sprintf("%s complete", util.Basename(s.ScenePath)))
	} else {
		fmt.Printf("%s %s: %s\n", r.red.Sprint("✗"), util.Basename(s.ScenePath), s.Reason)
	}
}

func (r *TerminalReporter) SessionComplete(message string) {
	r.finishProgress()
	fmt.Println()
	fmt.Printf("%s %s\n", r.green.Add(color.Bold).Sprint("✓"), r.bold.Sprint(message))
}

func (r *TerminalReporter) Warning(message string) {
	fmt.Println()
	_, _ = r.yellow.Printf("WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	_, _ = fmt.Fprintln(os.Stderr)
	_, _ = r.red.Fprintf(os.Stderr, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(os.Stderr, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	fmt.Printf("  %s %s\n", r.dim.Sprint("›"), r.dim.Sprint(strings.TrimSpace(message)))
}
