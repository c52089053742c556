// Package discoveryproto implements the UDP broadcast discovery
// protocol: a coordinator-side probe broadcaster/reply collector and
// a worker-side listener/responder, per spec.md §4.5.
package discoveryproto

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Magic is the 16-byte ASCII probe literal, per spec.md §6.
const Magic = "BLENDER_DISCOVER"

// Reply is a parsed worker discovery reply.
type Reply struct {
	Hostname string
	IP       string
	JobPort  int
	FromAddr string
}

// ParseReply parses a "CLIENT|<hostname>|<ip>|<job_port>" line.
func ParseReply(data []byte) (Reply, bool) {
	parts := strings.Split(string(data), "|")
	if len(parts) != 4 || parts[0] != "CLIENT" {
		return Reply{}, false
	}
	port, err := strconv.Atoi(parts[3])
	if err != nil {
		return Reply{}, false
	}
	return Reply{Hostname: parts[1], IP: parts[2], JobPort: port}, true
}

// FormatReply builds the "CLIENT|hostname|ip|job_port" wire line.
func FormatReply(hostname, ip string, jobPort int) []byte {
	return []byte(fmt.Sprintf("CLIENT|%s|%s|%d", hostname, ip, jobPort))
}

// Prober broadcasts discovery probes from the coordinator and
// collects replies for a fixed window each cycle.
type Prober struct {
	Port        int
	ReplyWindow time.Duration
	PeriodMs    int
}

// NewProber creates a Prober with the given UDP port, reply-collection
// window, and probe period.
func NewProber(port int, replyWindow time.Duration, periodMs int) *Prober {
	return &Prober{Port: port, ReplyWindow: replyWindow, PeriodMs: periodMs}
}

// ProbeOnce broadcasts a single probe and returns the replies observed
// within p.ReplyWindow. A broadcast failure is non-fatal: it returns
// an error but callers should log and retry next cycle per spec.md §4.5.
func (p *Prober) ProbeOnce() ([]Reply, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer conn.Close()
	if rc, err := conn.SyscallConn(); err == nil {
		_ = rc.Control(func(fd uintptr) {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
		})
	}

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: p.Port}
	if _, err := conn.WriteToUDP([]byte(Magic), broadcastAddr); err != nil {
		return nil, fmt.Errorf("failed to broadcast discovery probe: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(p.ReplyWindow))

	var replies []Reply
	buf := make([]byte, 512)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			break // deadline exceeded or socket closed; window over
		}
		reply, ok := ParseReply(buf[:n])
		if !ok {
			continue
		}
		if addr != nil {
			reply.FromAddr = addr.IP.String()
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// Listener is the worker-side discovery responder: it binds to Port
// and replies to every probe it receives with this worker's identity.
type Listener struct {
	Port     int
	Hostname string
	JobPort  int
}

// NewListener creates a discovery Listener for the worker role.
func NewListener(port int, hostname string, jobPort int) *Listener {
	return &Listener{Port: port, Hostname: hostname, JobPort: jobPort}
}

// Serve binds the discovery port and replies to probes until stop is
// closed. Bind failure (port already in use) is fatal for the worker,
// per spec.md §4.5, and is returned immediately without retry.
func (l *Listener) Serve(stop <-chan struct{}) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: l.Port})
	if err != nil {
		return fmt.Errorf("discovery listener bind failed on port %d: %w", l.Port, err)
	}
	defer conn.Close()

	go func() {
		<-stop
		_ = conn.Close()
	}()

	buf := make([]byte, 64)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				return fmt.Errorf("discovery listener read failed: %w", err)
			}
		}
		if string(buf[:n]) != Magic {
			continue
		}
		localIP := localIPFor(addr)
		reply := FormatReply(l.Hostname, localIP, l.JobPort)
		_, _ = conn.WriteToUDP(reply, addr)
	}
}

// localIPFor picks the outbound-facing local IP for a reply to remote.
func localIPFor(remote *net.UDPAddr) string {
	conn, err := net.Dial("udp4", remote.String())
	if err != nil {
		return "0.0.0.0"
	}
	defer conn.Close()
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "0.0.0.0"
	}
	return local.IP.String()
}
