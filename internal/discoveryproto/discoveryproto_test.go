package discoveryproto

import (
	"testing"
	"time"
)

func TestParseReply(t *testing.T) {
	r, ok := ParseReply([]byte("CLIENT|worker-1|192.168.1.50|50010"))
	if !ok {
		t.Fatal("expected parse success")
	}
	if r.Hostname != "worker-1" || r.IP != "192.168.1.50" || r.JobPort != 50010 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseReplyRejectsMalformed(t *testing.T) {
	cases := []string{
		"CLIENT|worker-1|192.168.1.50",
		"SERVER|worker-1|192.168.1.50|50010",
		"CLIENT|worker-1|192.168.1.50|not-a-port",
		"",
	}
	for _, c := range cases {
		if _, ok := ParseReply([]byte(c)); ok {
			t.Fatalf("expected rejection for %q", c)
		}
	}
}

func TestFormatReplyRoundTrip(t *testing.T) {
	data := FormatReply("worker-1", "10.0.0.5", 50010)
	r, ok := ParseReply(data)
	if !ok {
		t.Fatal("expected parse success")
	}
	if r.Hostname != "worker-1" || r.IP != "10.0.0.5" || r.JobPort != 50010 {
		t.Fatalf("got %+v", r)
	}
}

func TestProbeListenerRoundTrip(t *testing.T) {
	port := 53211 // fixed high port for the loopback test
	listener := NewListener(port, "test-worker", 50010)
	stop := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- listener.Serve(stop) }()
	defer close(stop)

	time.Sleep(50 * time.Millisecond) // let the listener bind

	prober := NewProber(port, 500*time.Millisecond, 3000)
	replies, err := prober.ProbeOnce()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1: %+v", len(replies), replies)
	}
	if replies[0].Hostname != "test-worker" || replies[0].JobPort != 50010 {
		t.Fatalf("got %+v", replies[0])
	}
}
