//go:build unix

package irc

import (
	"errors"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// rawConn 取得底层描述符，非套接字连接（如 net.Pipe）返回 false
func rawConn(conn net.Conn) (syscall.RawConn, bool) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, false
	}
	return raw, true
}

// setNonblocking 设置 O_NONBLOCK
func setNonblocking(conn net.Conn) error {
	raw, ok := rawConn(conn)
	if !ok {
		return nil
	}

	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = unix.SetNonblock(int(fd), true)
	}); err != nil {
		return &SocketError{Op: "nonblock", Err: err}
	}
	if serr != nil {
		return &SocketError{Op: "nonblock", Err: serr}
	}
	return nil
}

// verifyReady 等待套接字可读或可写并检查 SO_ERROR
func verifyReady(conn net.Conn, timeout time.Duration) error {
	raw, ok := rawConn(conn)
	if !ok {
		return nil
	}

	var result error
	if err := raw.Control(func(fd uintptr) {
		result = pollReady(int(fd), timeout)
	}); err != nil {
		return &SocketError{Op: "verify", Err: err}
	}
	return result
}

func pollReady(fd int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN | unix.POLLOUT}}

	for {
		wait := -1
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return &TimeoutError{Op: "verify ready", After: timeout}
			}
			wait = int(remaining / time.Millisecond)
			if wait == 0 {
				wait = 1
			}
		}

		n, err := unix.Poll(fds, wait)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return &SocketError{Op: "poll", Err: err}
		}
		if n == 0 {
			return &TimeoutError{Op: "verify ready", After: timeout}
		}
		break
	}

	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return &SocketError{Op: "getsockopt", Err: err}
	}
	if soerr != 0 {
		return &SocketError{Op: "connect", Err: unix.Errno(soerr)}
	}
	return nil
}
