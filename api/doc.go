// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the public contracts of the fibrio runtime: the
// reactor abstraction shared by the epoll and io_uring backends and
// the sentinel errors used across packages.
//
// Implementations live in reactor/, uring/ and ioctx/.
package api
