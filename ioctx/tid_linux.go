//go:build linux

// File: ioctx/tid_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ioctx

import "golang.org/x/sys/unix"

func currentTID() int64 { return int64(unix.Gettid()) }
