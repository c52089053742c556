// Package config provides configuration types and defaults for farmd.
package config

import "fmt"

// Default constants.
const (
	// DefaultUDPPort is the discovery probe/reply port.
	DefaultUDPPort int = 50000

	// DefaultJobPort is the worker job-dispatch port.
	DefaultJobPort int = 50010

	// DefaultUploadPort is the coordinator frame-upload port.
	DefaultUploadPort int = 50020

	// DefaultDiscoveryPeriodMs is the interval between discovery probe cycles.
	DefaultDiscoveryPeriodMs int = 3000

	// DiscoveryReplyWindowMs is how long the coordinator waits for replies
	// after sending a probe, each cycle.
	DiscoveryReplyWindowMs int = 1000

	// DefaultChunkSize is the default maximum chunk length in frames.
	DefaultChunkSize int = 50

	// MetadataReadTimeoutSecs bounds reads of fixed-size protocol metadata
	// (headers, length prefixes). Per spec.md §4.6/§5 this must be >= 10s.
	MetadataReadTimeoutSecs = 10

	// PayloadIdleTimeoutSecs bounds how long a payload transfer may go
	// without any bytes before it is considered dead.
	PayloadIdleTimeoutSecs = 60
)

// Config holds all configuration for the coordinator and worker.
type Config struct {
	// Renderer & output
	RendererExe string
	OutRoot     string
	ChunkSize   int
	RunScript   bool
	ScriptName  string

	// Network
	DiscoveryPeriodMs int
	UDPPort           int
	JobPort           int
	UploadPort        int

	// Worker staging
	JobsDir string

	// Ambient
	LogDir  string
	Verbose bool
}

// NewConfig creates a Config with default values.
func NewConfig(rendererExe, outRoot string) *Config {
	return &Config{
		RendererExe:       rendererExe,
		OutRoot:           outRoot,
		ChunkSize:         DefaultChunkSize,
		DiscoveryPeriodMs: DefaultDiscoveryPeriodMs,
		UDPPort:           DefaultUDPPort,
		JobPort:           DefaultJobPort,
		UploadPort:        DefaultUploadPort,
		JobsDir:           "jobs",
	}
}

// Validate checks the configuration for errors. Per spec.md §7,
// InvalidConfig covers: chunk size non-positive, missing renderer path,
// no scenes queued (checked by the scheduler, not here).
func (c *Config) Validate() error {
	if c.RendererExe == "" {
		return fmt.Errorf("renderer executable path is required")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be a positive integer, got %d", c.ChunkSize)
	}
	if c.OutRoot == "" {
		return fmt.Errorf("out_root is required")
	}
	if c.DiscoveryPeriodMs < 1 {
		return fmt.Errorf("discovery_period_ms must be positive, got %d", c.DiscoveryPeriodMs)
	}
	for _, p := range []struct {
		name string
		port int
	}{
		{"udp_port", c.UDPPort},
		{"job_port", c.JobPort},
		{"upload_port", c.UploadPort},
	} {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("%s must be a valid TCP/UDP port, got %d", p.name, p.port)
		}
	}
	return nil
}
