//go:build linux

// Package reaper reaps exited child processes (clients the bridge spawned
// directly, or helper subprocesses) without blocking the event loop on
// wait(2). A SIGCHLD handler cannot safely do real work, so the standard
// self-pipe trick is used: os/signal delivers SIGCHLD onto a buffered
// channel, a goroutine drains it and wait4(WNOHANG)s every outstanding pid
// into a run-queue the event loop collects once per iteration.
package reaper

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Exit records one reaped child's outcome.
type Exit struct {
	PID      int
	ExitCode int
	Signaled bool
	Signal   syscall.Signal
}

// Reaper tracks a set of watched pids and collects their exits as SIGCHLD
// deliveries arrive. It also exposes a self-pipe fd the event loop can add
// to its ppoll set, so a SIGCHLD that lands just before the poll wait is
// observed as pipe readability rather than lost.
type Reaper struct {
	mu      sync.Mutex
	watched map[int]bool
	pending []Exit

	sigc         chan os.Signal
	stop         chan struct{}
	pipeR, pipeW *os.File
}

// New starts watching for SIGCHLD. Call Stop to release the signal
// registration.
func New() *Reaper {
	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		// A self-pipe is best-effort wakeup plumbing; reaping itself still
		// works off the signal channel if the pipe can't be created.
		pipeR, pipeW = nil, nil
	}
	r := &Reaper{
		watched: make(map[int]bool),
		sigc:    make(chan os.Signal, 8),
		stop:    make(chan struct{}),
		pipeR:   pipeR,
		pipeW:   pipeW,
	}
	signal.Notify(r.sigc, syscall.SIGCHLD)
	go r.loop()
	return r
}

// NotifyFd returns the read end of the self-pipe for the event loop's
// ppoll fd set, or -1 if the pipe could not be created. Readable means at
// least one SIGCHLD arrived since the last ConsumeNotifications.
func (r *Reaper) NotifyFd() int {
	if r.pipeR == nil {
		return -1
	}
	return int(r.pipeR.Fd())
}

// ConsumeNotifications drains the self-pipe after the event loop wakes up,
// so the next ppoll doesn't spuriously return readable immediately.
func (r *Reaper) ConsumeNotifications() {
	if r.pipeR == nil {
		return
	}
	fd := int(r.pipeR.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return
	}
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(fd, buf)
		if n <= 0 || err != nil {
			return
		}
	}
}

// Watch registers pid as a child whose exit should be collected.
func (r *Reaper) Watch(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watched[pid] = true
}

// Forget stops tracking pid without waiting for it (used if the caller
// reaps it some other way).
func (r *Reaper) Forget(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watched, pid)
}

func (r *Reaper) loop() {
	for {
		select {
		case <-r.sigc:
			if r.pipeW != nil {
				_, _ = r.pipeW.Write([]byte{1})
			}
			r.reapAll()
		case <-r.stop:
			return
		}
	}
}

// reapAll drains every exited watched child via WNOHANG, so a SIGCHLD that
// coalesces several simultaneous exits (signals don't queue) still reaps
// all of them.
func (r *Reaper) reapAll() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		r.mu.Lock()
		watched := r.watched[pid]
		delete(r.watched, pid)
		r.mu.Unlock()
		if !watched {
			continue
		}

		exit := Exit{PID: pid}
		if ws.Exited() {
			exit.ExitCode = ws.ExitStatus()
		} else if ws.Signaled() {
			exit.Signaled = true
			exit.Signal = ws.Signal()
		}

		r.mu.Lock()
		r.pending = append(r.pending, exit)
		r.mu.Unlock()
	}
}

// Drain returns and clears every exit collected since the last Drain. The
// event loop calls this once per iteration.
func (r *Reaper) Drain() []Exit {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	out := r.pending
	r.pending = nil
	return out
}

// Stop unregisters the SIGCHLD handler and shuts down the drain goroutine.
func (r *Reaper) Stop() {
	signal.Stop(r.sigc)
	close(r.stop)
	if r.pipeR != nil {
		_ = r.pipeR.Close()
		_ = r.pipeW.Close()
	}
}
