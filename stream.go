package asyncio

import (
	"golang.org/x/sys/unix"
)

// ReadResult is the value a TcpStream.Read future resolves to: N bytes read
// (0 with a nil Err on EOF, matching io.Reader convention) or a terminal
// I/O error.
type ReadResult struct {
	N   int
	Err error
}

// WriteResult is the value a TcpStream.Write future resolves to.
type WriteResult struct {
	N   int
	Err error
}

// TcpStream is a non-blocking, reactor-integrated TCP connection: every read
// or write attempts the syscall directly and, on EAGAIN, arms reactor
// interest and returns Pending instead of blocking.
type TcpStream struct {
	rt *Runtime
	fd int
}

// Fd returns the stream's raw file descriptor, for diagnostics/tests.
func (s *TcpStream) Fd() int { return s.fd }

// Read returns a future that resolves once at least one byte has been read
// into buf, the peer has closed the connection (N=0, Err=nil), or a
// terminal I/O error occurs. buf must remain valid and unmodified by the
// caller until the future resolves.
func (s *TcpStream) Read(buf []byte) Future[ReadResult] {
	return FutureFunc[ReadResult](func(cx *Context) (ReadResult, bool) {
		n, err := unix.Read(s.fd, buf)
		switch err {
		case nil:
			return ReadResult{N: n}, true
		case unix.EAGAIN, unix.EWOULDBLOCK:
			_ = cx.Runtime().Reactor().ArmReadable(s.fd, cx.Waker())
			return ReadResult{}, false
		case unix.EINTR:
			_ = cx.Runtime().Reactor().ArmReadable(s.fd, cx.Waker())
			return ReadResult{}, false
		default:
			return ReadResult{Err: err}, true
		}
	})
}

// Write returns a future that resolves once some or all of buf has been
// written (short writes are reported via WriteResult.N, the same as a
// blocking net.Conn — callers loop if N < len(buf)), or a terminal I/O
// error occurs.
func (s *TcpStream) Write(buf []byte) Future[WriteResult] {
	return FutureFunc[WriteResult](func(cx *Context) (WriteResult, bool) {
		n, err := unix.Write(s.fd, buf)
		switch err {
		case nil:
			return WriteResult{N: n}, true
		case unix.EAGAIN, unix.EWOULDBLOCK:
			_ = cx.Runtime().Reactor().ArmWritable(s.fd, cx.Waker())
			return WriteResult{}, false
		case unix.EINTR:
			_ = cx.Runtime().Reactor().ArmWritable(s.fd, cx.Waker())
			return WriteResult{}, false
		default:
			return WriteResult{Err: err}, true
		}
	})
}

// Flush is a no-op: a raw TCP socket has no userspace write buffer in this
// implementation. It is retained as a future so callers written against a
// buffered Stream implementation don't need special-casing.
func (s *TcpStream) Flush() Future[error] {
	return FutureFunc[error](func(cx *Context) (error, bool) {
		return nil, true
	})
}

// Close deregisters and closes the connection.
func (s *TcpStream) Close() error {
	_ = s.rt.Reactor().Remove(s.fd)
	return unix.Close(s.fd)
}
