//go:build linux

// File: uring/ring_linux.go
// Package uring implements the kernel submission/completion queue
// reactor on io_uring, used when the workload is dominated by socket
// I/O and the generic readiness path costs too much.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw ABI layer: io_uring_setup, the mmap'd SQ/CQ rings and SQE array,
// io_uring_enter. No liburing; syscall numbers and structure layouts
// follow the kernel uapi.

package uring

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	sysSetup uintptr = 425
	sysEnter uintptr = 426

	offSQRing int64 = 0
	offCQRing int64 = 0x8000000
	offSQEs   int64 = 0x10000000

	enterGetEvents uintptr = 1

	featSingleMMap uint32 = 1 << 0

	// SQE flag: this entry links to the next one; the next operation
	// starts only after this one completed.
	sqeIOLink uint8 = 1 << 2
)

type sqOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

type cqOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

type setupParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        sqOffsets
	cqOff        cqOffsets
}

// sqe mirrors struct io_uring_sqe (64 bytes).
type sqe struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	length      uint32
	opFlags     uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	_           [2]uint64
}

// cqe mirrors struct io_uring_cqe (16 bytes).
type cqe struct {
	userData uint64
	res      int32
	flags    uint32
}

// ring holds the mmap'd queue pair of one io_uring instance.
type ring struct {
	fd int

	sqHead    *uint32
	sqTail    *uint32
	sqMask    uint32
	sqEntries uint32
	sqArray   []uint32
	sqes      []sqe

	cqHead    *uint32
	cqTail    *uint32
	cqMask    uint32
	cqEntries uint32
	cqes      []cqe

	sqMmap  []byte
	cqMmap  []byte
	sqeMmap []byte
}

func setupRing(depth uint32) (*ring, error) {
	var p setupParams
	fd, _, errno := unix.Syscall(sysSetup, uintptr(depth), uintptr(unsafe.Pointer(&p)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("uring: io_uring_setup depth=%d: %w", depth, errno)
	}
	r := &ring{fd: int(fd)}

	sqSize := int(p.sqOff.array) + int(p.sqEntries)*4
	cqSize := int(p.cqOff.cqes) + int(p.cqEntries)*int(unsafe.Sizeof(cqe{}))

	if p.features&featSingleMMap != 0 {
		size := sqSize
		if cqSize > size {
			size = cqSize
		}
		m, err := unix.Mmap(r.fd, offSQRing, size,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("uring: mmap rings: %w", err)
		}
		r.sqMmap = m
		r.cqMmap = m
	} else {
		sm, err := unix.Mmap(r.fd, offSQRing, sqSize,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("uring: mmap sq ring: %w", err)
		}
		cm, err := unix.Mmap(r.fd, offCQRing, cqSize,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("uring: mmap cq ring: %w", err)
		}
		r.sqMmap = sm
		r.cqMmap = cm
	}

	sm, err := unix.Mmap(r.fd, offSQEs, int(p.sqEntries)*int(unsafe.Sizeof(sqe{})),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		r.close()
		return nil, fmt.Errorf("uring: mmap sqes: %w", err)
	}
	r.sqeMmap = sm

	sqBase := unsafe.Pointer(&r.sqMmap[0])
	r.sqHead = (*uint32)(unsafe.Add(sqBase, p.sqOff.head))
	r.sqTail = (*uint32)(unsafe.Add(sqBase, p.sqOff.tail))
	r.sqMask = *(*uint32)(unsafe.Add(sqBase, p.sqOff.ringMask))
	r.sqEntries = p.sqEntries
	r.sqArray = unsafe.Slice((*uint32)(unsafe.Add(sqBase, p.sqOff.array)), p.sqEntries)
	r.sqes = unsafe.Slice((*sqe)(unsafe.Pointer(&r.sqeMmap[0])), p.sqEntries)

	cqBase := unsafe.Pointer(&r.cqMmap[0])
	r.cqHead = (*uint32)(unsafe.Add(cqBase, p.cqOff.head))
	r.cqTail = (*uint32)(unsafe.Add(cqBase, p.cqOff.tail))
	r.cqMask = *(*uint32)(unsafe.Add(cqBase, p.cqOff.ringMask))
	r.cqEntries = p.cqEntries
	r.cqes = unsafe.Slice((*cqe)(unsafe.Add(cqBase, p.cqOff.cqes)), p.cqEntries)

	return r, nil
}

// sqSpace returns how many SQEs can be queued before the ring is full.
func (r *ring) sqSpace() uint32 {
	head := atomic.LoadUint32(r.sqHead)
	tail := *r.sqTail
	return r.sqEntries - (tail - head)
}

// push writes one SQE at the tail. Caller checked sqSpace.
func (r *ring) push(e *sqe) {
	tail := *r.sqTail
	idx := tail & r.sqMask
	r.sqes[idx] = *e
	r.sqArray[idx] = idx
	atomic.StoreUint32(r.sqTail, tail+1)
}

// cqReady returns the number of unread completions.
func (r *ring) cqReady() uint32 {
	return atomic.LoadUint32(r.cqTail) - *r.cqHead
}

// pop reads one completion. Caller checked cqReady.
func (r *ring) pop() cqe {
	head := *r.cqHead
	c := r.cqes[head&r.cqMask]
	atomic.StoreUint32(r.cqHead, head+1)
	return c
}

// enter submits toSubmit queued SQEs and optionally waits for
// minComplete completions.
func (r *ring) enter(toSubmit, minComplete uint32, flags uintptr) error {
	for {
		_, _, errno := unix.Syscall6(sysEnter, uintptr(r.fd),
			uintptr(toSubmit), uintptr(minComplete), flags, 0, 0)
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			if minComplete > 0 {
				// interrupted wait: completions may still be pending,
				// the caller re-polls
				return nil
			}
			continue
		default:
			return fmt.Errorf("uring: io_uring_enter: %w", errno)
		}
	}
}

func (r *ring) close() {
	if r.sqeMmap != nil {
		_ = unix.Munmap(r.sqeMmap)
	}
	single := len(r.cqMmap) > 0 && len(r.sqMmap) > 0 &&
		&r.cqMmap[0] == &r.sqMmap[0]
	if r.sqMmap != nil {
		_ = unix.Munmap(r.sqMmap)
	}
	if r.cqMmap != nil && !single {
		_ = unix.Munmap(r.cqMmap)
	}
	_ = unix.Close(r.fd)
}
