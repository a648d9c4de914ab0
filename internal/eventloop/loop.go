// Package eventloop implements the single-threaded cooperative reactor
// shared by cdba and cdba-server: one goroutine, a small set of
// watched file descriptors, and a sorted timer queue. Unlike the
// teacher's per-connection goroutine model, both peers of this protocol
// are constrained to exactly one session at a time and must preserve
// strict ordering between console bytes, work-queue writes and timer
// firings, so everything is dispatched from a single unix.Select loop.
package eventloop

import (
	"container/heap"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ReadFunc is invoked when fd becomes readable. Returning an error stops
// the loop at once (the remaining callbacks of that pass are not run)
// and is surfaced from Run.
type ReadFunc func(fd int) error

// WriteFunc is invoked when fd becomes writable, but only while the
// callback is armed (see Loop.ArmWrite). Returning an error stops the loop.
type WriteFunc func(fd int) error

// TimerFunc is invoked once a scheduled deadline has passed.
type TimerFunc func()

type timer struct {
	deadline time.Time
	fn       TimerFunc
	index    int // heap.Interface bookkeeping
	canceled bool
}

type timerHeap []*timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) { t := x.(*timer); t.index = len(*h); *h = append(*h, t) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

type readReg struct {
	fn ReadFunc
}

type writeReg struct {
	fd     int
	fn     WriteFunc
	armed  bool
	hasReg bool
}

// Loop is a single-threaded fd + timer multiplexer built directly on
// golang.org/x/sys/unix, mirroring the original select(2)-based reactor.
// It is not safe for concurrent use: all registration calls and Run
// itself must happen from the same goroutine.
type Loop struct {
	reads   map[int]*readReg
	write   writeReg
	timers  timerHeap
	quit    bool
	lastErr error

	postMu   sync.Mutex
	posted   []func()
	postR    *os.File
	postW    *os.File
}

// New returns an empty Loop.
func New() *Loop {
	l := &Loop{reads: make(map[int]*readReg)}
	heap.Init(&l.timers)
	if r, w, err := os.Pipe(); err == nil {
		_ = unix.SetNonblock(int(r.Fd()), true)
		_ = unix.SetNonblock(int(w.Fd()), true)
		l.postR, l.postW = r, w
		l.AddReadFd(int(r.Fd()), l.drainPosted)
	}
	return l
}

// Post schedules fn to run on the loop goroutine at the start of the
// next iteration, waking a blocked Select via a self-pipe. It is the
// only safe way for code outside the loop goroutine (a background
// goroutine driving a slow subprocess or I/O transfer) to feed a
// result back into loop-owned state (spec.md §5's single-goroutine
// guarantee): fn must not be called directly from such a goroutine.
func (l *Loop) Post(fn func()) {
	l.postMu.Lock()
	l.posted = append(l.posted, fn)
	l.postMu.Unlock()
	if l.postW != nil {
		_, _ = l.postW.Write([]byte{0})
	}
}

func (l *Loop) drainPosted(fd int) error {
	var buf [64]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			break
		}
	}
	l.postMu.Lock()
	fns := l.posted
	l.posted = nil
	l.postMu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return nil
}

// AddReadFd registers fd to be watched for readability. Calling it again
// for the same fd replaces the previous callback.
func (l *Loop) AddReadFd(fd int, fn ReadFunc) {
	l.reads[fd] = &readReg{fn: fn}
}

// RemoveReadFd stops watching fd.
func (l *Loop) RemoveReadFd(fd int) {
	delete(l.reads, fd)
}

// SetWriteFd installs the single write-side callback. Only one write fd
// is ever watched at a time, matching the spec's single work-queue
// writer: the callback starts disarmed and must be armed explicitly
// whenever the work queue holds pending bytes.
func (l *Loop) SetWriteFd(fd int, fn WriteFunc) {
	l.write = writeReg{fd: fd, fn: fn, hasReg: true}
}

// ArmWrite enables (or disables) dispatch of the write callback. The
// work queue calls this whenever it transitions between empty and
// non-empty so the loop never busy-polls a writable fd with nothing to
// send.
func (l *Loop) ArmWrite(armed bool) {
	l.write.armed = armed
}

// AddTimer schedules fn to run once, no earlier than d from now. The
// returned handle's Cancel method stops it from firing.
func (l *Loop) AddTimer(d time.Duration, fn TimerFunc) *Timer {
	t := &timer{deadline: time.Now().Add(d), fn: fn}
	heap.Push(&l.timers, t)
	return &Timer{t: t}
}

// Timer is an opaque handle to a scheduled timer callback.
type Timer struct{ t *timer }

// Cancel prevents a pending timer from firing. It is a no-op if the
// timer already fired or was already canceled.
func (t *Timer) Cancel() {
	if t == nil || t.t == nil {
		return
	}
	t.t.canceled = true
}

// Quit requests that Run return after completing its current dispatch pass.
func (l *Loop) Quit() { l.quit = true }

// nextTimeout returns the duration until the next live timer fires, and
// whether any timer is pending at all. Canceled timers at the top of the
// heap are popped and discarded here rather than left to linger.
func (l *Loop) nextTimeout(now time.Time) (time.Duration, bool) {
	for l.timers.Len() > 0 {
		next := l.timers[0]
		if next.canceled {
			heap.Pop(&l.timers)
			continue
		}
		if !next.deadline.After(now) {
			return 0, true
		}
		return next.deadline.Sub(now), true
	}
	return 0, false
}

// fireExpired runs every timer whose deadline has passed, oldest first,
// per spec invariant: timers fire in non-decreasing deadline order even
// if several expire between two Select calls.
func (l *Loop) fireExpired(now time.Time) {
	for l.timers.Len() > 0 {
		next := l.timers[0]
		if next.canceled {
			heap.Pop(&l.timers)
			continue
		}
		if next.deadline.After(now) {
			return
		}
		heap.Pop(&l.timers)
		next.fn()
	}
}

// Run blocks, dispatching read, write and timer callbacks until Quit is
// called or a callback returns an error. EINTR from the underlying
// select(2) is retried transparently.
func (l *Loop) Run() error {
	for !l.quit {
		var rfds unix.FdSet
		nfds := 0
		for fd := range l.reads {
			fdSetSet(&rfds, fd)
			if fd+1 > nfds {
				nfds = fd + 1
			}
		}
		var wfds unix.FdSet
		if l.write.hasReg && l.write.armed {
			fdSetSet(&wfds, l.write.fd)
			if l.write.fd+1 > nfds {
				nfds = l.write.fd + 1
			}
		}

		var tv *unix.Timeval
		if d, ok := l.nextTimeout(time.Now()); ok {
			if d < 0 {
				d = 0
			}
			t := unix.NsecToTimeval(d.Nanoseconds())
			tv = &t
		}

		n, err := unix.Select(nfds, &rfds, &wfds, nil, tv)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("eventloop: select: %w", err)
		}

		l.fireExpired(time.Now())

		if n <= 0 {
			continue
		}
		for fd, reg := range l.reads {
			if fdSetIsSet(&rfds, fd) {
				if err := reg.fn(fd); err != nil {
					return err
				}
			}
		}
		if l.write.hasReg && l.write.armed && fdSetIsSet(&wfds, l.write.fd) {
			if err := l.write.fn(l.write.fd); err != nil {
				return err
			}
		}
	}
	return l.lastErr
}

func fdSetSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdSetIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
