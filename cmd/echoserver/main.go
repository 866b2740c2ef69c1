// Command echoserver is a runnable demonstration of the asyncio package: a
// single-threaded TCP echo server built from a hand-written accept loop and
// per-connection future.
package main

import (
	"flag"
	"fmt"
	"os"

	asyncio "github.com/nyxtom/async-runtime"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "listen address")
	flag.Parse()

	rt, err := asyncio.NewRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, "new runtime:", err)
		os.Exit(1)
	}
	defer rt.Close()

	ln, err := asyncio.Bind(rt, *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bind:", err)
		os.Exit(1)
	}
	defer ln.Close()

	fmt.Printf("echoserver listening on %s\n", *addr)

	if _, err := asyncio.BlockOn[asyncio.Unit](rt, &acceptLoop{rt: rt, ln: ln}); err != nil {
		fmt.Fprintln(os.Stderr, "serve:", err)
		os.Exit(1)
	}
}

// acceptLoop is a hand-written Future[Unit]: it never resolves on its own
// (a server runs forever), spawning a new echoConn for every accepted
// connection. It demonstrates composing one future (ln.Accept()) from
// inside another's Poll method.
type acceptLoop struct {
	rt        *asyncio.Runtime
	ln        *asyncio.TcpListener
	accepting asyncio.Future[asyncio.AcceptResult]
}

func (a *acceptLoop) Poll(cx *asyncio.Context) (asyncio.Unit, bool) {
	for {
		if a.accepting == nil {
			a.accepting = a.ln.Accept()
		}
		res, ready := a.accepting.Poll(cx)
		if !ready {
			return asyncio.Unit{}, false
		}
		a.accepting = nil

		if res.Err != nil {
			fmt.Fprintln(os.Stderr, "accept:", res.Err)
			continue
		}
		asyncio.Spawn(a.rt, &echoConn{stream: res.Stream})
	}
}

// echoConn is a hand-written Future[Unit] driving a single connection
// through an alternating read/write cycle until the peer closes or an I/O
// error occurs — the manual equivalent of a Rust `impl Future` state
// machine, since Go has no async/await sugar for this.
type echoConn struct {
	stream   *asyncio.TcpStream
	buf      [4096]byte
	n        int
	writeOff int
	reading  asyncio.Future[asyncio.ReadResult]
	writing  asyncio.Future[asyncio.WriteResult]
}

func (e *echoConn) Poll(cx *asyncio.Context) (asyncio.Unit, bool) {
	for {
		if e.writing != nil {
			w, ready := e.writing.Poll(cx)
			if !ready {
				return asyncio.Unit{}, false
			}
			e.writing = nil
			if w.Err != nil {
				_ = e.stream.Close()
				return asyncio.Unit{}, true
			}
			e.writeOff += w.N
			if e.writeOff < e.n {
				e.writing = e.stream.Write(e.buf[e.writeOff:e.n])
				continue
			}
		}

		if e.reading == nil {
			e.reading = e.stream.Read(e.buf[:])
		}
		r, ready := e.reading.Poll(cx)
		if !ready {
			return asyncio.Unit{}, false
		}
		e.reading = nil

		if r.Err != nil || r.N == 0 {
			_ = e.stream.Close()
			return asyncio.Unit{}, true
		}

		e.n = r.N
		e.writeOff = 0
		e.writing = e.stream.Write(e.buf[:e.n])
	}
}
