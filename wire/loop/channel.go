package loop

import (
	"fmt"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// netChannel adapts a kernel socket to the non-blocking Channel contract.
// Reads and writes go through the raw file descriptor so that EAGAIN is
// surfaced as ErrWouldBlock instead of parking the goroutine in the runtime
// poller; readiness waits reuse the runtime poller via syscall.RawConn.
type netChannel struct {
	conn net.Conn
	raw  syscall.RawConn
}

// NewNetChannel wraps an established network connection. The connection must
// expose its raw file descriptor (TCP and Unix sockets do).
func NewNetChannel(conn net.Conn) (ReadyChannel, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("loop: %T does not expose a raw connection", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("loop: raw connection: %w", err)
	}
	return &netChannel{conn: conn, raw: raw}, nil
}

func (c *netChannel) Read(p []byte) (int, error) {
	var n int
	var serr error
	err := c.raw.Read(func(fd uintptr) bool {
		for {
			n, serr = unix.Read(int(fd), p)
			if serr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, err
	}
	if serr == unix.EAGAIN || serr == unix.EWOULDBLOCK {
		return 0, ErrWouldBlock
	}
	if serr != nil {
		return 0, serr
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *netChannel) Write(p []byte) (int, error) {
	var n int
	var serr error
	err := c.raw.Write(func(fd uintptr) bool {
		for {
			n, serr = unix.Write(int(fd), p)
			if serr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, err
	}
	if serr == unix.EAGAIN || serr == unix.EWOULDBLOCK {
		if n < 0 {
			n = 0
		}
		return n, ErrWouldBlock
	}
	if serr != nil {
		return 0, serr
	}
	return n, nil
}

// WaitReadable parks in the runtime poller until the socket is readable. The
// callback declines the first invocation so that RawConn.Read waits for the
// next readiness notification instead of returning immediately.
func (c *netChannel) WaitReadable() error {
	primed := false
	return c.raw.Read(func(uintptr) bool {
		if !primed {
			primed = true
			return false
		}
		return true
	})
}

// WaitWritable parks in the runtime poller until the socket is writable.
func (c *netChannel) WaitWritable() error {
	primed := false
	return c.raw.Write(func(uintptr) bool {
		if !primed {
			primed = true
			return false
		}
		return true
	})
}

func (c *netChannel) Close() error {
	return c.conn.Close()
}
