// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// minThroughputBytesPerSecond is the slowest upload rate tolerated before a
// connection's read deadline fires (4KB/s).
const minThroughputBytesPerSecond = 4000

// Listener wraps a net.Listener and hands out connections whose read
// deadline grows with the amount of data already received, so a large but
// steady upload is not cut off by a fixed timeout.
type Listener struct {
	net.Listener
	ReadTimeout time.Duration
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: c, ReadTimeout: l.ReadTimeout}, nil
}

// Conn sets a scaled read deadline before every read.
type Conn struct {
	net.Conn
	ReadTimeout time.Duration
	bytesRead   int64
}

// bytesPerTimeout is the data expected during one timeout period at the
// minimum throughput. Never returns less than 1.
func bytesPerTimeout(timeout time.Duration) int64 {
	n := int64(float64(minThroughputBytesPerSecond) * timeout.Seconds())
	if n <= 0 {
		return 1
	}
	return n
}

func (c *Conn) Read(b []byte) (int, error) {
	if c.ReadTimeout != 0 {
		multiplier := time.Duration(c.bytesRead/bytesPerTimeout(c.ReadTimeout) + 1)
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.ReadTimeout * multiplier)); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Read(b)
	c.bytesRead += int64(n)
	return n, err
}

// NewListener listens on addr. A zero timeout disables read deadlines.
func NewListener(addr string, timeout time.Duration) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: listener, ReadTimeout: timeout}, nil
}

func JoinHostPort(host string, port int) string {
	portStr := strconv.Itoa(port)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + portStr
	}
	return net.JoinHostPort(host, portStr)
}
