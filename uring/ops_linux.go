//go:build linux

// File: uring/ops_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Operation descriptors. An Op is a value describing one SQE; builders
// keep the referenced buffers reachable until the completion arrives.

package uring

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// io_uring opcodes (kernel uapi).
const (
	opNop         uint8 = 0
	opTimeout     uint8 = 11
	opAccept      uint8 = 13
	opAsyncCancel uint8 = 14
	opConnect     uint8 = 16
	opClose       uint8 = 19
	opRead        uint8 = 22
	opWrite       uint8 = 23
	opSend        uint8 = 26
	opRecv        uint8 = 27
	opShutdown    uint8 = 34
)

// Op describes one submission.
type Op struct {
	code    uint8
	fd      int
	addr    uint64
	length  uint32
	off     uint64
	opFlags uint32

	// keep pins the I/O buffer for the kernel's lifetime of the op.
	keep []byte
}

// Fd returns the descriptor the operation targets (-1 for none).
func (o Op) Fd() int { return o.fd }

// Nop returns a no-op submission, useful as a barrier in linked chains.
func Nop() Op {
	return Op{code: opNop, fd: -1}
}

// Recv reads from a socket into buf.
func Recv(fd int, buf []byte) Op {
	return Op{
		code:   opRecv,
		fd:     fd,
		addr:   uint64(uintptr(unsafe.Pointer(&buf[0]))),
		length: uint32(len(buf)),
		keep:   buf,
	}
}

// Send writes buf to a socket.
func Send(fd int, buf []byte) Op {
	return Op{
		code:   opSend,
		fd:     fd,
		addr:   uint64(uintptr(unsafe.Pointer(&buf[0]))),
		length: uint32(len(buf)),
		keep:   buf,
	}
}

// Read reads from a file descriptor at off.
func Read(fd int, buf []byte, off uint64) Op {
	o := Recv(fd, buf)
	o.code = opRead
	o.off = off
	return o
}

// Write writes to a file descriptor at off.
func Write(fd int, buf []byte, off uint64) Op {
	o := Send(fd, buf)
	o.code = opWrite
	o.off = off
	return o
}

// Accept accepts one connection on a listening socket. sa and saLen
// must stay reachable until completion; the completion result is the
// new descriptor.
func Accept(fd int, sa *unix.RawSockaddrAny, saLen *uint32) Op {
	return Op{
		code:    opAccept,
		fd:      fd,
		addr:    uint64(uintptr(unsafe.Pointer(sa))),
		off:     uint64(uintptr(unsafe.Pointer(saLen))),
		opFlags: unix.SOCK_CLOEXEC,
	}
}

// Connect starts a connection on fd. sa must stay reachable until the
// completion arrives; a zero result means the socket is connected.
func Connect(fd int, sa *unix.RawSockaddrInet4) Op {
	return Op{
		code: opConnect,
		fd:   fd,
		addr: uint64(uintptr(unsafe.Pointer(sa))),
		off:  uint64(unix.SizeofSockaddrInet4),
	}
}

// Timeout completes with -ETIME after ts elapses, or earlier with
// -ECANCELED if cancelled. ts must stay reachable until completion.
func Timeout(ts *unix.Timespec) Op {
	return Op{
		code:   opTimeout,
		fd:     -1,
		addr:   uint64(uintptr(unsafe.Pointer(ts))),
		length: 1,
	}
}

// CloseFd closes a descriptor through the ring.
func CloseFd(fd int) Op {
	return Op{code: opClose, fd: fd}
}

// Shutdown shuts down a socket (unix.SHUT_RD/WR/RDWR).
func Shutdown(fd int, how int) Op {
	return Op{code: opShutdown, fd: fd, length: uint32(how)}
}

// cancelOp targets the in-flight submission carrying tag.
func cancelOp(tag uint64) Op {
	return Op{code: opAsyncCancel, fd: -1, addr: tag}
}
