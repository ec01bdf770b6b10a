// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"net"
	"testing"
)

// ListenUDP binds a UDP socket on 127.0.0.1 with a kernel-chosen port
// and returns its address and a channel carrying each datagram
// received. The socket is closed when the test completes.
func ListenUDP(t *testing.T) (string, <-chan []byte) {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening on loopback UDP: %v", err)
	}

	packets := make(chan []byte, 64)
	go func() {
		defer close(packets)
		buffer := make([]byte, 65535)
		for {
			n, _, err := conn.ReadFrom(buffer)
			if err != nil {
				return
			}
			packets <- append([]byte(nil), buffer[:n]...)
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })

	return conn.LocalAddr().String(), packets
}
