// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultSendTimeout bounds a single datagram write when the caller's
// context carries no deadline.
const DefaultSendTimeout = time.Second

// UDPOptions tunes a UDP sink. The zero value is usable.
type UDPOptions struct {
	// SendTimeout bounds each write. Zero means DefaultSendTimeout.
	SendTimeout time.Duration

	// SendBufferBytes sets SO_SNDBUF on the socket before it is
	// connected. Zero keeps the kernel default.
	SendBufferBytes int
}

// UDPSink writes each Send as one datagram on a connected UDP socket.
type UDPSink struct {
	conn        net.Conn
	addr        string
	sendTimeout time.Duration
}

// DialUDP connects a UDP socket to addr (host:port). Connecting a UDP
// socket performs no handshake; it only resolves the address and
// fixes the destination.
func DialUDP(ctx context.Context, addr string, options UDPOptions) (*UDPSink, error) {
	dialer := net.Dialer{}
	if options.SendBufferBytes > 0 {
		size := options.SendBufferBytes
		dialer.Control = func(_, _ string, raw syscall.RawConn) error {
			var sockoptErr error
			if err := raw.Control(func(fd uintptr) {
				sockoptErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, size)
			}); err != nil {
				return err
			}
			return sockoptErr
		}
	}

	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, &Error{Op: "dial", Addr: addr, Err: err}
	}

	sendTimeout := options.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &UDPSink{conn: conn, addr: addr, sendTimeout: sendTimeout}, nil
}

// Send writes data as a single datagram. The write deadline is the
// earlier of the context deadline and now+SendTimeout.
func (s *UDPSink) Send(ctx context.Context, data []byte) error {
	deadline := time.Now().Add(s.sendTimeout)
	if contextDeadline, ok := ctx.Deadline(); ok && contextDeadline.Before(deadline) {
		deadline = contextDeadline
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return &Error{Op: "send", Addr: s.addr, Err: err}
	}
	if _, err := s.conn.Write(data); err != nil {
		return &Error{Op: "send", Addr: s.addr, Err: err}
	}
	return nil
}

// Close releases the socket.
func (s *UDPSink) Close() error {
	if err := s.conn.Close(); err != nil {
		return &Error{Op: "close", Addr: s.addr, Err: err}
	}
	return nil
}

// String returns the remote address.
func (s *UDPSink) String() string { return s.addr }
