// Package main provides the CLI entry point for farmd: the distributed
// render farm coordinator and worker, both served by this binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/renderfarm/farmd/internal/config"
	"github.com/renderfarm/farmd/internal/discovery"
	"github.com/renderfarm/farmd/internal/logging"
	"github.com/renderfarm/farmd/internal/reporter"
)

const (
	appName    = "farmd"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "coordinate":
		err = runCoordinate(os.Args[2:])
	case "work":
		err = runWork(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("%s version %s\n", appName, appVersion)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - distributed render farm coordinator/worker

Usage:
  %s <command> [options]

Commands:
  coordinate   Run the coordinator: queue scenes, discover workers, dispatch jobs
  work         Run a worker: listen for discovery probes and accept jobs
  version      Print version information
  help         Show this help message

Run '%s coordinate --help' or '%s work --help' for command options.
`, appName, appName, appName, appName)
}

// coordinateArgs holds parsed arguments for the coordinate command.
type coordinateArgs struct {
	rendererExe string
	inputDir    string
	outDir      string
	logDir      string
	verbose     bool
	chunkSize   int
	udpPort     int
	jobPort     int
	uploadPort  int
	noLog       bool
	configPath  string
}

func runCoordinate(args []string) error {
	fs := flag.NewFlagSet("coordinate", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Run the coordinator.

Usage:
  %s coordinate [options]

Required:
  -b, --blender <PATH>   Path to the renderer executable
  -i, --input <PATH>     Directory containing scene files to queue

Options:
  -o, --out <PATH>       Output root directory (default: ./out)
  -l, --log-dir <PATH>   Log directory (defaults to XDG state dir)
  -v, --verbose          Enable verbose output
  --chunk-size <N>       Maximum frames per chunk (default: %d)
  --udp-port <N>         Discovery port (default: %d)
  --job-port <N>         Job dispatch port (default: %d)
  --upload-port <N>      Frame upload port (default: %d)
  --no-log               Disable log file creation
  --config <PATH>        Flat key=value file supplying defaults for
                          any flag not given explicitly
`, appName, config.DefaultChunkSize, config.DefaultUDPPort, config.DefaultJobPort, config.DefaultUploadPort)
	}

	var ca coordinateArgs
	fs.StringVar(&ca.configPath, "config", "", "Config file supplying flag defaults")
	fileValues := preloadConfigFile(args)

	fs.StringVar(&ca.rendererExe, "b", config.StringValue(fileValues, "blender", ""), "Path to renderer executable")
	fs.StringVar(&ca.rendererExe, "blender", config.StringValue(fileValues, "blender", ""), "Path to renderer executable")
	fs.StringVar(&ca.inputDir, "i", config.StringValue(fileValues, "input", ""), "Directory containing scene files")
	fs.StringVar(&ca.inputDir, "input", config.StringValue(fileValues, "input", ""), "Directory containing scene files")
	fs.StringVar(&ca.outDir, "o", config.StringValue(fileValues, "out", "out"), "Output root directory")
	fs.StringVar(&ca.outDir, "out", config.StringValue(fileValues, "out", "out"), "Output root directory")
	fs.StringVar(&ca.logDir, "l", config.StringValue(fileValues, "log_dir", ""), "Log directory")
	fs.StringVar(&ca.logDir, "log-dir", config.StringValue(fileValues, "log_dir", ""), "Log directory")
	fs.BoolVar(&ca.verbose, "v", config.BoolValue(fileValues, "verbose", false), "Enable verbose output")
	fs.BoolVar(&ca.verbose, "verbose", config.BoolValue(fileValues, "verbose", false), "Enable verbose output")
	fs.IntVar(&ca.chunkSize, "chunk-size", config.IntValue(fileValues, "chunk_size", config.DefaultChunkSize), "Maximum frames per chunk")
	fs.IntVar(&ca.udpPort, "udp-port", config.IntValue(fileValues, "udp_port", config.DefaultUDPPort), "Discovery port")
	fs.IntVar(&ca.jobPort, "job-port", config.IntValue(fileValues, "job_port", config.DefaultJobPort), "Job dispatch port")
	fs.IntVar(&ca.uploadPort, "upload-port", config.IntValue(fileValues, "upload_port", config.DefaultUploadPort), "Frame upload port")
	fs.BoolVar(&ca.noLog, "no-log", false, "Disable log file creation")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if ca.rendererExe == "" {
		return fmt.Errorf("renderer executable path is required (-b/--blender)")
	}
	if ca.inputDir == "" {
		return fmt.Errorf("input directory is required (-i/--input)")
	}

	return executeCoordinate(ca)
}

// preloadConfigFile does a minimal pre-scan of args for "--config"/"-config"
// so its values can seed flag defaults before the real flag.Parse runs;
// an explicit CLI flag still wins since flag.Parse overwrites whatever
// default we seeded here.
func preloadConfigFile(args []string) map[string]string {
	for i, a := range args {
		if a == "--config" || a == "-config" {
			if i+1 < len(args) {
				if values, err := config.LoadFile(args[i+1]); err == nil {
					return values
				}
			}
			return nil
		}
		if strings.HasPrefix(a, "--config=") {
			if values, err := config.LoadFile(strings.TrimPrefix(a, "--config=")); err == nil {
				return values
			}
			return nil
		}
	}
	return nil
}

func executeCoordinate(ca coordinateArgs) error {
	logDir := ca.logDir
	if logDir == "" {
		logDir = logging.DefaultLogDir()
	}
	logger, err := logging.Setup(logDir, ca.verbose, ca.noLog, os.Args)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if logger != nil {
		defer func() { _ = logger.Close() }()
	}

	scenePaths, err := discovery.FindSceneFiles(ca.inputDir)
	if err != nil {
		return fmt.Errorf("failed to discover scene files: %w", err)
	}
	if logger != nil {
		logger.Info("Discovered %d scene file(s) in %s", len(scenePaths), ca.inputDir)
	}

	cfg := config.NewConfig(ca.rendererExe, ca.outDir)
	cfg.ChunkSize = ca.chunkSize
	cfg.UDPPort = ca.udpPort
	cfg.JobPort = ca.jobPort
	cfg.UploadPort = ca.uploadPort
	cfg.LogDir = logDir
	cfg.Verbose = ca.verbose
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	terminalRep := reporter.NewTerminalReporterVerbose(ca.verbose)
	rep := reporter.NewCompositeReporter(terminalRep)
	if logger != nil {
		// Log-file writes go through the event bus rather than being
		// called synchronously from the scheduler/upload server hot
		// paths: a slow disk or full log partition falls behind its own
		// buffered channel instead of stalling rendering or dispatch.
		bus := reporter.NewEventBusReporter(256)
		bus.Forward(reporter.NewLogReporter(logger))
		rep = reporter.NewCompositeReporter(terminalRep, bus)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runSession(ctx, cfg, scenePaths, rep)
}

// workArgs holds parsed arguments for the work command.
type workArgs struct {
	rendererExe string
	jobsDir     string
	logDir      string
	verbose     bool
	jobPort     int
	udpPort     int
	noLog       bool
	configPath  string
}

func runWork(args []string) error {
	fs := flag.NewFlagSet("work", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Run a worker.

Usage:
  %s work [options]

Required:
  -b, --blender <PATH>   Path to the renderer executable

Options:
  --jobs-dir <PATH>      Job staging directory (default: ./jobs)
  -l, --log-dir <PATH>   Log directory (defaults to XDG state dir)
  -v, --verbose          Enable verbose output
  --job-port <N>         Job dispatch listen port (default: %d)
  --udp-port <N>         Discovery listen port (default: %d)
  --no-log               Disable log file creation
  --config <PATH>        Flat key=value file supplying defaults for
                          any flag not given explicitly
`, appName, config.DefaultJobPort, config.DefaultUDPPort)
	}

	var wa workArgs
	fs.StringVar(&wa.configPath, "config", "", "Config file supplying flag defaults")
	fileValues := preloadConfigFile(args)
	fs.StringVar(&wa.rendererExe, "b", config.StringValue(fileValues, "blender", ""), "Path to renderer executable")
	fs.StringVar(&wa.rendererExe, "blender", config.StringValue(fileValues, "blender", ""), "Path to renderer executable")
	fs.StringVar(&wa.jobsDir, "jobs-dir", config.StringValue(fileValues, "jobs_dir", "jobs"), "Job staging directory")
	fs.StringVar(&wa.logDir, "l", config.StringValue(fileValues, "log_dir", ""), "Log directory")
	fs.StringVar(&wa.logDir, "log-dir", config.StringValue(fileValues, "log_dir", ""), "Log directory")
	fs.BoolVar(&wa.verbose, "v", config.BoolValue(fileValues, "verbose", false), "Enable verbose output")
	fs.BoolVar(&wa.verbose, "verbose", config.BoolValue(fileValues, "verbose", false), "Enable verbose output")
	fs.IntVar(&wa.jobPort, "job-port", config.IntValue(fileValues, "job_port", config.DefaultJobPort), "Job dispatch listen port")
	fs.IntVar(&wa.udpPort, "udp-port", config.IntValue(fileValues, "udp_port", config.DefaultUDPPort), "Discovery listen port")
	fs.BoolVar(&wa.noLog, "no-log", false, "Disable log file creation")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if wa.rendererExe == "" {
		return fmt.Errorf("renderer executable path is required (-b/--blender)")
	}

	return executeWork(wa)
}

func executeWork(wa workArgs) error {
	logDir := wa.logDir
	if logDir == "" {
		logDir = logging.DefaultLogDir()
	}
	logger, err := logging.Setup(logDir, wa.verbose, wa.noLog, os.Args)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if logger != nil {
		defer func() { _ = logger.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runWorkerRole(ctx, wa, logger)
}
