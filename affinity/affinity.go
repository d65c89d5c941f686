// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral API for CPU affinity. Platform-specific
// implementations live in build-tagged files (affinity_linux.go,
// affinity_stub.go).

package affinity

// Pin binds the calling OS thread to the given logical CPU. The caller
// must hold runtime.LockOSThread for the pin to stay meaningful.
// On unsupported platforms Pin is a no-op returning nil.
func Pin(cpuID int) error {
	return pinPlatform(cpuID)
}
