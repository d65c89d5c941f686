// File: client/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package client is a fiber-aware RESP client. All calls run inside a
// fiber of the unit owning the connection; the fiber suspends while
// I/O is in flight, keeping the unit free for other work.
package client

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/ioctx"
	"github.com/momentics/fibrio/pool"
	"github.com/momentics/fibrio/protocol"
	"github.com/momentics/fibrio/transport"
)

type Client struct {
	sock    transport.Socket
	rbuf    []byte
	pending []byte
}

// Dial connects to a RESP server at addr ("ip:port") on unit c.
func Dial(c *ioctx.Context, fb *fiber.Fiber, addr string) (*Client, error) {
	sock, err := transport.Dial(c, fb, addr)
	if err != nil {
		return nil, err
	}
	return &Client{sock: sock, rbuf: pool.Get(4096)}, nil
}

// Do sends one command and returns the reply payload. Error replies
// come back as Go errors; nil bulk replies as the empty string.
func (cl *Client) Do(fb *fiber.Fiber, args ...string) (string, error) {
	req := make([]byte, 0, 64)
	req = append(req, '*')
	req = strconv.AppendInt(req, int64(len(args)), 10)
	req = append(req, '\r', '\n')
	for _, a := range args {
		req = protocol.AppendBulkString(req, a)
	}
	if err := cl.writeAll(fb, req); err != nil {
		return "", err
	}

	line, err := cl.readLine(fb)
	if err != nil {
		return "", err
	}
	if len(line) == 0 {
		return "", fmt.Errorf("client: empty reply")
	}
	switch line[0] {
	case '+', ':':
		return line[1:], nil
	case '-':
		return "", fmt.Errorf("client: server error: %s", line[1:])
	case '$':
		n, perr := strconv.Atoi(line[1:])
		if perr != nil {
			return "", fmt.Errorf("client: bad bulk length %q", line[1:])
		}
		if n < 0 {
			return "", nil
		}
		return cl.readBulk(fb, n)
	default:
		return "", fmt.Errorf("client: unexpected reply %q", line)
	}
}

// Ping round-trips a PING and verifies the PONG.
func (cl *Client) Ping(fb *fiber.Fiber) error {
	reply, err := cl.Do(fb, "PING")
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("client: unexpected ping reply %q", reply)
	}
	return nil
}

func (cl *Client) Close() error {
	if cl.rbuf != nil {
		pool.Put(cl.rbuf)
		cl.rbuf = nil
	}
	return cl.sock.Close()
}

func (cl *Client) writeAll(fb *fiber.Fiber, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := cl.sock.WriteSome(fb, buf[off:])
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

func (cl *Client) fill(fb *fiber.Fiber) error {
	n, err := cl.sock.ReadSome(fb, cl.rbuf)
	if err != nil {
		return err
	}
	cl.pending = append(cl.pending, cl.rbuf[:n]...)
	return nil
}

func (cl *Client) readLine(fb *fiber.Fiber) (string, error) {
	for {
		if i := bytes.IndexByte(cl.pending, '\n'); i >= 0 {
			line := cl.pending[:i]
			cl.pending = cl.pending[i+1:]
			return string(bytes.TrimRight(line, "\r")), nil
		}
		if err := cl.fill(fb); err != nil {
			return "", err
		}
	}
}

func (cl *Client) readBulk(fb *fiber.Fiber, n int) (string, error) {
	for len(cl.pending) < n+2 {
		if err := cl.fill(fb); err != nil {
			return "", err
		}
	}
	val := string(cl.pending[:n])
	cl.pending = cl.pending[n+2:]
	return val, nil
}
