// Package readiness provides the host-side readiness-multiplexer contract
// the Connection registers its endpoints against, plus a concrete
// epoll-backed Poller a host can use directly.
package readiness

// Registrar is the narrow interface the Connection uses to tell a
// host-provided readiness multiplexer about its endpoint file descriptors.
// Both of a Connection's endpoint registrations share one token so the host
// can recognize "the DHCP connection has work" without distinguishing which
// endpoint fired.
type Registrar interface {
	// Register starts watching fd for read-readiness, associated with
	// token.
	Register(fd uintptr, token uint64) error

	// Deregister stops watching fd. It is a no-op, not an error, if fd was
	// never registered.
	Deregister(fd uintptr) error
}
