// Command selectorecho is a minimal TCP echo server built directly on top
// of a Selector. It plays the role of the event loop the selector package
// itself deliberately does not implement: it owns the listening socket and
// every accepted connection, and drives all of them off Selector.Wait.
package main

import (
	"log"
	"net"
	"syscall"

	"github.com/fastio/ioselect/app"
	"github.com/fastio/ioselect/config"
	"github.com/fastio/ioselect/selector"
)

// listenerConn marks the registration belonging to the listening socket.
type listenerConn struct {
	fd int
}

func (l *listenerConn) FD() int    { return l.fd }
func (l *listenerConn) Open() bool { return l.fd >= 0 }

// echoConn is one accepted connection. It implements selector.Closer so a
// GentleClose sweep can drain it before the selector itself goes down.
type echoConn struct {
	fd     int
	closed chan struct{}
}

func (c *echoConn) FD() int    { return c.fd }
func (c *echoConn) Open() bool { return c.fd >= 0 }

func (c *echoConn) Close() <-chan struct{} {
	go func() {
		syscall.Close(c.fd)
		close(c.closed)
	}()
	return c.closed
}

func main() {
	cfg := config.New()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("app.New: %v", err)
	}
	sel := a.Selector()

	lfd, err := listen(cfg.ListenAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	mgr := config.NewManager()
	mgr.Watch(func(active int64) {
		log.Printf("active connections: %d", active)
	})

	ln := &listenerConn{fd: lfd}
	if _, err := sel.Register(ln, selector.IOEventRead, func(fd int) *selector.Registration {
		return &selector.Registration{Context: ln}
	}); err != nil {
		log.Fatalf("register listener: %v", err)
	}

	log.Printf("selectorecho listening on %s", cfg.ListenAddr)
	if err := a.Run(func(ev selector.Event) error {
		return dispatch(sel, mgr, ev)
	}); err != nil {
		log.Printf("app run: %v", err)
	}
}

func dispatch(sel *selector.Selector, mgr *config.Manager, ev selector.Event) error {
	switch c := ev.Registration.Context.(type) {
	case *listenerConn:
		acceptLoop(sel, mgr, c)
	case *echoConn:
		serveEcho(sel, mgr, c)
	}
	return nil
}

func acceptLoop(sel *selector.Selector, mgr *config.Manager, ln *listenerConn) {
	for {
		nfd, _, err := syscall.Accept(ln.fd)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return
			}
			log.Printf("accept: %v", err)
			return
		}
		if err := syscall.SetNonblock(nfd, true); err != nil {
			syscall.Close(nfd)
			continue
		}

		conn := &echoConn{fd: nfd, closed: make(chan struct{})}
		if _, err := sel.Register(conn, selector.IOEventRead, func(fd int) *selector.Registration {
			return &selector.Registration{Context: conn}
		}); err != nil {
			syscall.Close(nfd)
			continue
		}
		mgr.Adjust(1)
	}
}

func serveEcho(sel *selector.Selector, mgr *config.Manager, conn *echoConn) {
	var buf [4096]byte
	n, err := syscall.Read(conn.fd, buf[:])
	if n > 0 {
		syscall.Write(conn.fd, buf[:n])
	}
	if n == 0 || (err != nil && err != syscall.EAGAIN && err != syscall.EWOULDBLOCK) {
		sel.Deregister(conn)
		syscall.Close(conn.fd)
		mgr.Adjust(-1)
	}
}

// listen resolves addr, binds a TCP listener, and hands back a raw
// non-blocking duplicate of its descriptor. The duplicate is owned by no
// Go file object, so no finalizer can close it out from under the
// selector. The net.TCPListener itself is left open.
func listen(addr string) (int, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}

	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return -1, err
	}

	lnFile, err := ln.File()
	if err != nil {
		return -1, err
	}
	lfd, err := syscall.Dup(int(lnFile.Fd()))
	lnFile.Close()
	if err != nil {
		return -1, err
	}

	if err := syscall.SetNonblock(lfd, true); err != nil {
		return -1, err
	}
	return lfd, nil
}
