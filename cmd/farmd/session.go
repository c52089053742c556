package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/renderfarm/farmd/internal/config"
	"github.com/renderfarm/farmd/internal/discoveryproto"
	"github.com/renderfarm/farmd/internal/reporter"
	"github.com/renderfarm/farmd/internal/roster"
	"github.com/renderfarm/farmd/internal/scene"
	"github.com/renderfarm/farmd/internal/scheduler"
	"github.com/renderfarm/farmd/internal/uploadserver"
)

// runSession runs one coordinator session: starts the upload server
// and discovery prober, selects every discovered worker, then runs
// the scheduler over every queued scene in sequence.
func runSession(ctx context.Context, cfg *config.Config, scenePaths []string, rep reporter.Reporter) error {
	rost := roster.New()
	registry := uploadserver.NewRegistry()

	localHost, err := os.Hostname()
	if err != nil {
		localHost = "127.0.0.1"
	}
	if ip := preferredOutboundIP(); ip != "" {
		localHost = ip
	}

	sched := scheduler.New(cfg, rost, registry, rep, nil, localHost)

	uploadSrv := uploadserver.New(cfg.UploadPort, registry, sched.HandleUploadedFrame,
		func(format string, args ...any) { rep.Verbose(fmt.Sprintf(format, args...)) })

	stopUpload := make(chan struct{})
	go func() {
		if err := uploadSrv.Serve(stopUpload); err != nil {
			rep.Warning(fmt.Sprintf("upload server stopped: %v", err))
		}
	}()
	defer close(stopUpload)

	stopDiscovery := make(chan struct{})
	go runDiscoveryLoop(cfg, rost, rep, stopDiscovery)
	defer close(stopDiscovery)

	for _, path := range scenePaths {
		select {
		case <-ctx.Done():
			sched.CancelAll()
			rep.SessionComplete("session cancelled")
			return nil
		default:
		}
		sc := scene.New(path)
		if err := sched.RunScene(ctx, sc, "--introspect-range", "--introspect-deps"); err != nil {
			rep.Warning(fmt.Sprintf("scene %s failed: %v", path, err))
		}
	}

	rep.SessionComplete(fmt.Sprintf("processed %d scene(s)", len(scenePaths)))
	return nil
}

// runDiscoveryLoop probes for workers every cfg.DiscoveryPeriodMs and
// selects every responding worker, per spec.md §4.5/§4.9 step 6. A
// failed broadcast logs a warning and is retried next cycle.
func runDiscoveryLoop(cfg *config.Config, rost *roster.Roster, rep reporter.Reporter, stop <-chan struct{}) {
	prober := discoveryproto.NewProber(cfg.UDPPort, time.Duration(config.DiscoveryReplyWindowMs)*time.Millisecond, cfg.DiscoveryPeriodMs)
	ticker := time.NewTicker(time.Duration(cfg.DiscoveryPeriodMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		replies, err := prober.ProbeOnce()
		if err != nil {
			rep.Warning(fmt.Sprintf("discovery broadcast failed: %v", err))
		}
		for _, r := range replies {
			id := r.IP
			rost.Update(id, r.Hostname, r.IP, r.JobPort)
			rost.Select(r.IP, true)
			rep.WorkerDiscovered(reporter.WorkerSummary{ID: id, Hostname: r.Hostname, IP: r.IP, JobPort: r.JobPort, Selected: true})
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// preferredOutboundIP returns the local IP used to reach the public
// internet, for use as the upload_host advertised to workers.
func preferredOutboundIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}
