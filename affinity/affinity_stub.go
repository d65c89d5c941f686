//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

// pinPlatform is a no-op on platforms without sched_setaffinity.
func pinPlatform(cpuID int) error {
	return nil
}
