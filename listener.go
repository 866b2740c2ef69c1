package asyncio

import (
	"net"

	"golang.org/x/sys/unix"
)

// AcceptResult is the value an AcceptFuture resolves to: either a connected
// TcpStream and the address of the peer that connected, or a terminal I/O
// error. WouldBlock never reaches here — it's handled internally by
// re-arming and returning Pending.
type AcceptResult struct {
	Stream *TcpStream
	Peer   *net.TCPAddr
	Err    error
}

// TcpListener is a non-blocking, reactor-integrated TCP listener, implemented
// directly over raw sockets (golang.org/x/sys/unix) rather than net.Listener
// so the fd is owned by this runtime's reactor instead of Go's own
// net-poller.
type TcpListener struct {
	rt *Runtime
	fd int
}

// Bind creates, binds, and listens on a TCP address, registering the
// resulting fd with rt's reactor.
func Bind(rt *Runtime, addr string) (*TcpListener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	domain := unix.AF_INET
	if tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	sa, err := sockaddrFromTCPAddr(tcpAddr)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if err := rt.Reactor().Register(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &TcpListener{rt: rt, fd: fd}, nil
}

// Fd returns the listener's raw file descriptor, for diagnostics/tests.
func (ln *TcpListener) Fd() int { return ln.fd }

// Accept returns a future that resolves with the next inbound connection.
// Calling Accept multiple times creates independent AcceptFutures that all
// compete for the reactor's readable queue on this fd — the natural Go
// analogue of spawning multiple accept loops.
func (ln *TcpListener) Accept() Future[AcceptResult] {
	return FutureFunc[AcceptResult](func(cx *Context) (AcceptResult, bool) {
		connFd, sa, err := unix.Accept4(ln.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == nil {
			if regErr := ln.rt.Reactor().Register(connFd); regErr != nil {
				_ = unix.Close(connFd)
				return AcceptResult{Err: regErr}, true
			}
			return AcceptResult{
				Stream: &TcpStream{rt: ln.rt, fd: connFd},
				Peer:   tcpAddrFromSockaddr(sa),
			}, true
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			_ = ln.rt.Reactor().ArmReadable(ln.fd, cx.Waker())
			return AcceptResult{}, false
		}
		return AcceptResult{Err: err}, true
	})
}

// Close deregisters and closes the listening socket.
func (ln *TcpListener) Close() error {
	_ = ln.rt.Reactor().Remove(ln.fd)
	return unix.Close(ln.fd)
}

// tcpAddrFromSockaddr converts the unix.Sockaddr accept4 hands back into a
// *net.TCPAddr. sa is nil only if the kernel returned a non-IP address
// family, which cannot happen for a socket this listener created itself.
func tcpAddrFromSockaddr(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, sa.Addr[:])
		return &net.TCPAddr{IP: ip, Port: sa.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, sa.Addr[:])
		return &net.TCPAddr{IP: ip, Port: sa.Port}
	default:
		return nil
	}
}

func sockaddrFromTCPAddr(addr *net.TCPAddr) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	ip16 := addr.IP.To16()
	if ip16 == nil {
		ip16 = net.IPv6zero
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], ip16)
	return sa, nil
}
