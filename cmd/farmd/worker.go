package main

import (
	"context"
	"fmt"
	"os"

	"github.com/renderfarm/farmd/internal/discoveryproto"
	"github.com/renderfarm/farmd/internal/logging"
	"github.com/renderfarm/farmd/internal/workerserver"
)

// runWorkerRole starts the worker's discovery listener and job server
// and blocks until ctx is cancelled, per spec.md §2/§4.5/§4.7.
func runWorkerRole(ctx context.Context, wa workArgs, logger *logging.Logger) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	listener := discoveryproto.NewListener(wa.udpPort, hostname, wa.jobPort)
	stopDiscovery := make(chan struct{})
	discoveryErrCh := make(chan error, 1)
	go func() { discoveryErrCh <- listener.Serve(stopDiscovery) }()

	srv := workerserver.New(workerserver.Config{
		ListenPort:   wa.jobPort,
		JobsDir:      wa.jobsDir,
		RendererExe:  wa.rendererExe,
		ScriptFlag:   "-P",
		AutoexecFlag: "-y",
	}, func(format string, args ...any) {
		if logger != nil {
			logger.Info(format, args...)
		} else if wa.verbose {
			fmt.Printf(format+"\n", args...)
		}
	})

	jobErrCh := make(chan error, 1)
	stopJobs := make(chan struct{})
	go func() { jobErrCh <- srv.Serve(ctx, stopJobs) }()

	select {
	case <-ctx.Done():
		close(stopDiscovery)
		close(stopJobs)
		return nil
	case err := <-discoveryErrCh:
		close(stopJobs)
		if err != nil {
			return fmt.Errorf("discovery listener stopped: %w", err)
		}
		return nil
	case err := <-jobErrCh:
		close(stopDiscovery)
		if err != nil {
			return fmt.Errorf("job server stopped: %w", err)
		}
		return nil
	}
}
