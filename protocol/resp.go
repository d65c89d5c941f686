// File: protocol/resp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package protocol implements a minimal RESP wire codec: inline
// commands, bulk-string arrays and the reply forms a ping-style
// server needs. The parser is incremental, fed from whatever chunk
// boundaries the transport produced.
package protocol

import (
	"bytes"
	"fmt"
	"strconv"
)

// AppendSimpleString appends "+s\r\n" to dst.
func AppendSimpleString(dst []byte, s string) []byte {
	dst = append(dst, '+')
	dst = append(dst, s...)
	return append(dst, '\r', '\n')
}

// AppendError appends "-msg\r\n" to dst.
func AppendError(dst []byte, msg string) []byte {
	dst = append(dst, '-')
	dst = append(dst, msg...)
	return append(dst, '\r', '\n')
}

// AppendBulkString appends "$len\r\ns\r\n" to dst.
func AppendBulkString(dst []byte, s string) []byte {
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, s...)
	return append(dst, '\r', '\n')
}

// Parser accumulates raw bytes and yields complete commands. A
// command is either an array of bulk strings or an inline
// space-separated line.
type Parser struct {
	buf []byte
}

// Feed appends a transport chunk to the parse buffer.
func (p *Parser) Feed(data []byte) {
	p.buf = append(p.buf, data...)
}

// Pending reports buffered bytes not yet consumed by Next.
func (p *Parser) Pending() int { return len(p.buf) }

// Next returns the next complete command, or ok=false when more bytes
// are needed. A malformed prefix returns an error; the parser is not
// usable afterwards.
func (p *Parser) Next() (args []string, ok bool, err error) {
	if len(p.buf) == 0 {
		return nil, false, nil
	}
	if p.buf[0] == '*' {
		return p.nextArray()
	}
	return p.nextInline()
}

func (p *Parser) nextInline() ([]string, bool, error) {
	i := bytes.IndexByte(p.buf, '\n')
	if i < 0 {
		return nil, false, nil
	}
	line := p.buf[:i]
	p.buf = p.buf[i+1:]
	line = bytes.TrimRight(line, "\r")
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		// empty line between commands, skip to the next one
		return p.Next()
	}
	args := make([]string, len(fields))
	for k, f := range fields {
		args[k] = string(f)
	}
	return args, true, nil
}

func (p *Parser) nextArray() ([]string, bool, error) {
	rest := p.buf
	n, rest, ok, err := parseIntLine(rest, '*')
	if !ok || err != nil {
		return nil, false, err
	}
	if n < 0 || n > 1024 {
		return nil, false, fmt.Errorf("protocol: bad array length %d", n)
	}
	args := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		var blen int64
		blen, rest, ok, err = parseIntLine(rest, '$')
		if !ok || err != nil {
			return nil, false, err
		}
		if blen < 0 || blen > 512<<20 {
			return nil, false, fmt.Errorf("protocol: bad bulk length %d", blen)
		}
		if int64(len(rest)) < blen+2 {
			return nil, false, nil
		}
		args = append(args, string(rest[:blen]))
		if rest[blen] != '\r' || rest[blen+1] != '\n' {
			return nil, false, fmt.Errorf("protocol: bulk string missing terminator")
		}
		rest = rest[blen+2:]
	}
	p.buf = rest
	return args, true, nil
}

// parseIntLine consumes "<marker><int>\r\n" from b.
func parseIntLine(b []byte, marker byte) (int64, []byte, bool, error) {
	if len(b) == 0 {
		return 0, b, false, nil
	}
	if b[0] != marker {
		return 0, b, false, fmt.Errorf("protocol: expected %q, got %q", marker, b[0])
	}
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return 0, b, false, nil
	}
	numEnd := i
	if numEnd > 0 && b[numEnd-1] == '\r' {
		numEnd--
	}
	n, err := strconv.ParseInt(string(b[1:numEnd]), 10, 64)
	if err != nil {
		return 0, b, false, fmt.Errorf("protocol: bad length prefix: %w", err)
	}
	return n, b[i+1:], true, nil
}
