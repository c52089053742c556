// Package wire implements the length-prefixed TCP framing shared by
// job dispatch and frame upload, per spec.md §4.6. All integers are
// network byte order; metadata reads use a bounded timeout, payload
// reads are bounded only by idle time.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/renderfarm/farmd/internal/farmerr"
)

// JobHeader is the job-dispatch metadata sent coordinator -> worker.
type JobHeader struct {
	Cmd          string   `json:"cmd"`
	JobID        string   `json:"job_id"`
	File         string   `json:"file"`
	Dependencies []string `json:"dependencies"`
	Start        int      `json:"start"`
	End          int      `json:"end"`
	UploadHost   string   `json:"upload_host"`
	UploadPort   int      `json:"upload_port"`
	RunScript    bool     `json:"run_script"`
	ScriptName   string   `json:"script_name"`
}

// UploadHeader is the frame-upload metadata sent worker -> coordinator.
// JobID is the spec.md §9 extension that lets the coordinator resolve
// a destination directory without relying on "most recently started scene".
type UploadHeader struct {
	JobID    string `json:"job_id"`
	Frame    int    `json:"frame"`
	Filename string `json:"filename"`
}

// FileEntry is one file (scene or dependency) to be staged at RelPath,
// read from or written to disk by callers.
type FileEntry struct {
	RelPath string
	Size    uint64
}

const metadataTimeout = 10 * time.Second
const payloadIdleTimeout = 60 * time.Second

// WriteHeader writes a length-prefixed JSON header: uint32 length
// followed by that many bytes of JSON.
func WriteHeader(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return farmerr.Wrap(farmerr.IntegrityError, "failed to marshal header", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "failed to write header length", err)
	}
	if _, err := w.Write(body); err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "failed to write header body", err)
	}
	return nil
}

// ReadHeader reads a length-prefixed JSON header into v. conn, if
// non-nil, gets a read deadline for the metadata timeout.
func ReadHeader(r io.Reader, conn net.Conn, v any) error {
	if conn != nil {
		_ = conn.SetReadDeadline(time.Now().Add(metadataTimeout))
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "failed to read header length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > 16*1024*1024 {
		return farmerr.New(farmerr.IntegrityError, fmt.Sprintf("header length %d exceeds sane limit", n))
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "failed to read header body", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return farmerr.Wrap(farmerr.IntegrityError, "malformed header json", err)
	}
	return nil
}

// WriteFile writes a uint64 size prefix followed by exactly size bytes
// read from r.
func WriteFile(w io.Writer, size uint64, r io.Reader) error {
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], size)
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "failed to write payload size", err)
	}
	n, err := io.CopyN(w, r, int64(size))
	if err != nil {
		return farmerr.Wrap(farmerr.NetworkError, "failed to write payload body", err)
	}
	if uint64(n) != size {
		return farmerr.New(farmerr.IntegrityError, fmt.Sprintf("wrote %d bytes, expected %d", n, size))
	}
	return nil
}

// ReadFile reads a uint64 size prefix and exactly that many bytes,
// applying an idle timeout to conn (if non-nil) before each read.
func ReadFile(r io.Reader, conn net.Conn, w io.Writer) (uint64, error) {
	if conn != nil {
		_ = conn.SetReadDeadline(time.Now().Add(metadataTimeout))
	}
	var sizeBuf [8]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return 0, farmerr.Wrap(farmerr.NetworkError, "failed to read payload size", err)
	}
	size := binary.BigEndian.Uint64(sizeBuf[:])

	n, err := copyWithIdleTimeout(w, r, conn, int64(size))
	if err != nil {
		return 0, farmerr.Wrap(farmerr.NetworkError, "failed to read payload body", err)
	}
	if uint64(n) != size {
		return 0, farmerr.New(farmerr.IntegrityError, fmt.Sprintf("read %d bytes, expected %d", n, size))
	}
	return size, nil
}

// copyWithIdleTimeout copies exactly n bytes from r to w, resetting
// conn's read deadline before each chunk so that only idle time (no
// bytes for payloadIdleTimeout), not total transfer time, can expire
// the connection.
func copyWithIdleTimeout(w io.Writer, r io.Reader, conn net.Conn, n int64) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for total < n {
		if conn != nil {
			_ = conn.SetReadDeadline(time.Now().Add(payloadIdleTimeout))
		}
		want := n - total
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		read, err := r.Read(buf[:want])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return total, werr
			}
			total += int64(read)
		}
		if err != nil {
			if err == io.EOF && total == n {
				break
			}
			return total, err
		}
	}
	return total, nil
}
