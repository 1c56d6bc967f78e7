//go:build darwin || linux

package engine

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const (
	// tunSocketBufferBytes is the SO_RCVBUF/SO_SNDBUF size requested on the
	// tun descriptor. On platforms where the descriptor is a genuine
	// socket (Darwin's utun control socket) this widens the kernel's
	// buffering; on platforms where it is a plain character device
	// (Linux's /dev/net/tun) the setsockopt calls fail harmlessly and are
	// logged, not treated as fatal.
	tunSocketBufferBytes = 128 * 1024

	maxReadsPerIteration  = 32
	maxWritesPerIteration = 32
)

// reactor drives a single utun descriptor with a level-triggered poll
// loop: it always watches for readability, watches for writability only
// while the engine's write queue is non-empty, and can be woken early
// (from Stop or from a fresh enqueue) via a self-pipe.
type reactor struct {
	e *Engine

	wakeR int
	wakeW atomic.Int32 // -1 until start() completes

	stopCh chan struct{}
	doneCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func newReactor(e *Engine) *reactor {
	r := &reactor{e: e}
	r.wakeW.Store(-1)
	return r
}

func (r *reactor) start() error {
	var startErr error
	r.startOnce.Do(func() {
		if err := unix.SetNonblock(r.e.tunFD, true); err != nil {
			startErr = fmt.Errorf("set tun fd nonblocking: %w", err)
			return
		}
		for _, opt := range [...]int{unix.SO_RCVBUF, unix.SO_SNDBUF} {
			if err := unix.SetsockoptInt(r.e.tunFD, unix.SOL_SOCKET, opt, tunSocketBufferBytes); err != nil {
				log.Printf("engine: setsockopt %d on tun descriptor failed (harmless on non-socket descriptors): %v", opt, err)
			}
		}

		wakeR, wakeW, err := newWakePipe()
		if err != nil {
			startErr = fmt.Errorf("create wake pipe: %w", err)
			return
		}
		r.wakeR = wakeR
		r.wakeW.Store(int32(wakeW))

		r.stopCh = make(chan struct{})
		r.doneCh = make(chan struct{})
		go r.loop()
	})
	return startErr
}

func newWakePipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return 0, 0, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

// wake unblocks a poll currently in progress, causing the loop to
// re-evaluate stop state and write-queue occupancy on its next iteration.
// It is a no-op before start() has run.
func (r *reactor) wake() {
	fd := r.wakeW.Load()
	if fd < 0 {
		return
	}
	_, _ = unix.Write(int(fd), []byte{0})
}

// stop signals the loop to exit and blocks until it has torn down its
// file descriptors. It is a no-op if start was never called.
func (r *reactor) stop() {
	r.stopOnce.Do(func() {
		if r.stopCh == nil {
			return
		}
		close(r.stopCh)
		r.wake()
		<-r.doneCh
	})
}

func (r *reactor) loop() {
	defer close(r.doneCh)
	defer r.cleanup()

	readBuf := make([]byte, utunHeaderLen+maxReadSize)
	drainBuf := make([]byte, 64)

	for {
		if r.stopping() {
			return
		}

		events := int16(unix.POLLIN)
		if !r.e.writeQ.Empty() {
			events |= unix.POLLOUT
		}

		fds := []unix.PollFd{
			{Fd: int32(r.e.tunFD), Events: events},
			{Fd: int32(r.wakeR), Events: unix.POLLIN},
		}

		_, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Printf("engine: poll: %v", err)
			continue
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			for {
				if _, err := unix.Read(r.wakeR, drainBuf); err != nil {
					break
				}
			}
		}

		if r.stopping() {
			return
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			r.handleReadable(readBuf)
		}
		if fds[0].Revents&unix.POLLOUT != 0 {
			r.handleWritable()
		}
	}
}

func (r *reactor) stopping() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

func (r *reactor) handleReadable(buf []byte) {
	for i := 0; i < maxReadsPerIteration; i++ {
		n, err := unix.Read(r.e.tunFD, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			log.Printf("engine: read tun descriptor: %v", err)
			return
		}
		if n <= 0 {
			return
		}

		payload, ok := stripFraming(buf[:n])
		if !ok {
			continue
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		r.e.handleRead(cp)
	}
}

func (r *reactor) handleWritable() {
	for i := 0; i < maxWritesPerIteration; i++ {
		item, ok := r.e.writeQ.Poll()
		if !ok {
			return
		}
		if _, err := unix.Write(r.e.tunFD, item); err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				r.e.writeQ.PutFirst(item)
				return
			}
			log.Printf("engine: write tun descriptor: %v", err)
			return
		}
	}
}

// cleanup runs once, on the reactor goroutine, as the loop exits. It
// closes every descriptor the reactor owns, including the tun descriptor
// itself: on loop termination the engine's fd is closed and set to the
// -1 sentinel, mirroring TUNInterface's destructor.
func (r *reactor) cleanup() {
	if fd := r.wakeW.Load(); fd >= 0 {
		_ = unix.Close(int(fd))
	}
	if r.wakeR != 0 {
		_ = unix.Close(r.wakeR)
	}
	if r.e.tunFD >= 0 {
		_ = unix.Close(r.e.tunFD)
		r.e.tunFD = -1
	}
}
