package eventstream

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Source is one CPU's raw ring buffer file. Read must not block: when no
// page is available it returns zero bytes.
type Source interface {
	io.Reader
	io.Closer
}

// rawSource reads trace_pipe_raw through a plain non-blocking descriptor,
// outside the runtime poller, so EAGAIN surfaces to the caller.
type rawSource struct {
	fd int
}

// OpenRaw opens path read-only and non-blocking.
func OpenRaw(path string) (Source, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return &rawSource{fd: fd}, nil
}

func (s *rawSource) Read(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, os.ErrClosed
	}
	for {
		n, err := unix.Read(s.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

func (s *rawSource) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
