package wire

import (
	"bytes"
	"net"
	"testing"
)

func loopback(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	clientCh := make(chan net.Conn, 1)
	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Error(err)
			return
		}
		clientCh <- c
	}()

	server, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	client := <-clientCh
	return server, client
}

func TestHeaderRoundTrip(t *testing.T) {
	server, client := loopback(t)
	defer server.Close()
	defer client.Close()

	want := JobHeader{
		Cmd: "render", JobID: "scene_1-10", File: "scene.blend",
		Dependencies: []string{"tex/x.png", "_external/env.hdr"},
		Start:        1, End: 10, UploadHost: "127.0.0.1", UploadPort: 50020,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- WriteHeader(client, want) }()

	var got JobHeader
	if err := ReadHeader(server, server, &got); err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}

	if got.JobID != want.JobID || got.Start != want.Start || got.End != want.End ||
		len(got.Dependencies) != 2 || got.Dependencies[1] != "_external/env.hdr" {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFileRoundTrip(t *testing.T) {
	server, client := loopback(t)
	defer server.Close()
	defer client.Close()

	payload := bytes.Repeat([]byte("frame-bytes"), 1000)

	errCh := make(chan error, 1)
	go func() { errCh <- WriteFile(client, uint64(len(payload)), bytes.NewReader(payload)) }()

	var buf bytes.Buffer
	n, err := ReadFile(server, server, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if n != uint64(len(payload)) {
		t.Fatalf("got size %d, want %d", n, len(payload))
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Fatal("payload mismatch")
	}
}

func TestReadHeaderRejectsOversizedLength(t *testing.T) {
	server, client := loopback(t)
	defer server.Close()
	defer client.Close()

	go func() {
		var lenBuf [4]byte
		lenBuf[0] = 0x7f
		_, _ = client.Write(lenBuf[:])
	}()

	var got JobHeader
	if err := ReadHeader(server, server, &got); err == nil {
		t.Fatal("expected error for oversized header length")
	}
}
