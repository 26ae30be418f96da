//go:build linux

package readiness

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Poller is a concrete epoll(7)-backed Registrar, with one epoll instance
// per Poller.
type Poller struct {
	epfd int

	mu     sync.Mutex
	tokens map[uintptr]uint64
}

// NewPoller creates an epoll instance.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("readiness: epoll_create1: %w", err)
	}
	return &Poller{epfd: epfd, tokens: make(map[uintptr]uint64)}, nil
}

// Register implements Registrar.
func (p *Poller) Register(fd uintptr, token uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if _, exists := p.tokens[fd]; exists {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, int(fd), &event); err != nil {
		return fmt.Errorf("readiness: epoll_ctl add fd %d: %w", fd, err)
	}
	p.tokens[fd] = token
	return nil
}

// Deregister implements Registrar.
func (p *Poller) Deregister(fd uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.tokens[fd]; !exists {
		return nil
	}
	// event is unused by EPOLL_CTL_DEL on modern kernels but older ones
	// (pre-2.6.9) required a non-nil pointer; pass one for portability.
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), &unix.EpollEvent{}); err != nil {
		return fmt.Errorf("readiness: epoll_ctl del fd %d: %w", fd, err)
	}
	delete(p.tokens, fd)
	return nil
}

// Wait blocks (or, if timeoutMillis is 0, polls once) for readiness and
// returns the tokens of every fd that became readable.
func (p *Poller) Wait(timeoutMillis int) ([]uint64, error) {
	events := make([]unix.EpollEvent, 8)
	n, err := unix.EpollWait(p.epfd, events, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("readiness: epoll_wait: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	tokens := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		if tok, ok := p.tokens[uintptr(events[i].Fd)]; ok {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

// Close releases the epoll instance.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
