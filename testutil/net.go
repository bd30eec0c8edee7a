/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// GetLocalFreeTCPPort returns free (not listening by somebody) TCP port on the 127.0.0.1 network interface.
func GetLocalFreeTCPPort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		panic(err)
	}
	return port
}

// GetLocalAddrWithFreeTCPPort returns 127.0.0.1:<free-tcp-port> address.
func GetLocalAddrWithFreeTCPPort() string {
	return fmt.Sprintf("127.0.0.1:%d", GetLocalFreeTCPPort())
}

// MakeUnixSocketPath returns a path for a unix socket inside a fresh temporary directory.
// Socket paths are limited to ~100 bytes, so t.TempDir() (which includes the test name) can't be used here.
func MakeUnixSocketPath(name string) (socketPath string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "rb")
	if err != nil {
		return "", nil, err
	}
	return filepath.Join(dir, name), func() { _ = os.RemoveAll(dir) }, nil
}

// WaitListeningServer waits until the server is ready to accept TCP connection on the passing address.
func WaitListeningServer(addr string, timeout time.Duration) error {
	return waitListeningServer("tcp", addr, timeout)
}

// WaitListeningServerWithUnixSocket waits
// until the server is ready to accept unix socket connection on the passing address.
func WaitListeningServerWithUnixSocket(unixSocketPath string, timeout time.Duration) error {
	return waitListeningServer("unix", unixSocketPath, timeout)
}

func waitListeningServer(network string, addr string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if conn, err := net.DialTimeout(network, addr, time.Second); err == nil {
			return conn.Close()
		}
		select {
		case <-timer.C:
			return errors.New("waiting listening server timed out")
		default:
			time.Sleep(time.Millisecond * 10)
		}
	}
}

// RoundTrip dials the server, writes a single message, half-closes the connection if possible
// and reads everything the server sends back before closing it.
func RoundTrip(network, addr string, msg []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	if err = conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	if _, err = conn.Write(msg); err != nil {
		return nil, err
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err = cw.CloseWrite(); err != nil {
			return nil, err
		}
	}

	var resp []byte
	buf := make([]byte, 4096)
	for {
		n, readErr := conn.Read(buf)
		resp = append(resp, buf[:n]...)
		if readErr != nil {
			if errors.Is(readErr, os.ErrDeadlineExceeded) {
				return resp, readErr
			}
			return resp, nil
		}
	}
}
