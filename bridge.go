//go:build linux

package waybridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gogpu/waybridge/internal/dmabuf"
	"github.com/gogpu/waybridge/internal/errguard"
	"github.com/gogpu/waybridge/internal/reaper"
	"github.com/gogpu/waybridge/internal/role"
	"github.com/gogpu/waybridge/internal/waylandproto"
	"github.com/gogpu/waybridge/internal/xserver"
)

// pollTimeout bounds how long one Ppoll wait blocks. A self-pipe fd is
// always in the fd set, so this is a backstop, not the wakeup mechanism:
// reaper.Reaper already closes the SIGCHLD-before-poll race by buffering a
// wakeup byte in its pipe rather than relying on ppoll's atomic sigmask.
const pollTimeout = 1 * time.Second

// client is one accepted compositor-protocol connection and its
// error-accounting identity.
type client struct {
	id   errguard.ClientID
	conn *waylandproto.ClientConn
}

// Bridge owns the windowing-server connection, the compositor-protocol
// listener, and the protocol-independent core state every connected
// client's surfaces are driven through.
type Bridge struct {
	cfg Config
	log *slog.Logger

	xconn *xserver.Connection
	atoms *xserver.StandardAtoms

	listener *waylandproto.Listener

	surfaces  *role.SurfaceTable
	dmaImport *dmabuf.DmabufImport
	guard     *errguard.Guard
	oom       *errguard.OOMPolicy
	reap      *reaper.Reaper

	deps    waylandproto.Deps
	globals []waylandproto.GlobalDescriptor

	mu        sync.Mutex
	clients   map[int]*client // keyed by ClientConn.Fd()
	nextID    errguard.ClientID
	running   bool
	closed    bool
}

// New connects to the windowing server, interns the standard atoms, and
// starts listening for compositor-protocol clients. Call Close when done.
func New(cfg Config) (*Bridge, error) {
	xconn, err := connectX(cfg)
	if err != nil {
		return nil, fmt.Errorf("waybridge: %w: %v", ErrNoXServer, err)
	}

	atoms, err := xconn.InternStandardAtoms()
	if err != nil {
		_ = xconn.Close()
		return nil, fmt.Errorf("waybridge: intern atoms: %w", err)
	}

	if cfg.Synchronize {
		if err := xconn.Sync(); err != nil {
			_ = xconn.Close()
			return nil, fmt.Errorf("waybridge: initial sync: %w", err)
		}
	}

	ln, err := waylandproto.Listen()
	if err != nil {
		_ = xconn.Close()
		return nil, fmt.Errorf("waybridge: listen: %w", err)
	}

	formatTable := defaultFormatTable()
	deps := waylandproto.Deps{
		XConn:    xconn,
		Atoms:    atoms,
		Surfaces: role.NewSurfaceTable(),
		Dmabuf:   dmabuf.NewDmabufImport(formatTable),
		Feedback: dmabuf.FeedbackTable{MainDevice: 0, Entries: formatTable},

		Renderer:      waylandproto.NewNullRenderer(),
		IdleRegistrar: waylandproto.NewNullIdleRegistrar(),
		Scheduler:     timerScheduler{},

		GlobalScale:        1.0,
		DirectStateChanges: cfg.DirectStateChanges,
	}

	b := &Bridge{
		cfg:       cfg,
		log:       slog.Default(),
		xconn:     xconn,
		atoms:     atoms,
		listener:  ln,
		surfaces:  deps.Surfaces,
		dmaImport: deps.Dmabuf,
		guard:     errguard.NewGuard(),
		oom:       errguard.NewOOMPolicy(),
		reap:      reaper.New(),
		clients:   make(map[int]*client),
		deps:      deps,
		globals:   waylandproto.StandardGlobals(deps),
	}
	return b, nil
}

func connectX(cfg Config) (*xserver.Connection, error) {
	if cfg.XDisplay != "" {
		return xserver.ConnectTo(cfg.XDisplay)
	}
	return xserver.Connect()
}

// timerScheduler implements role.Scheduler with time.AfterFunc, the
// teacher's own go-to for one-shot delayed work outside the main poll
// loop. ToplevelRole only ever has one outstanding timer per role, so no
// pooling is worthwhile here.
type timerScheduler struct{}

func (timerScheduler) After(d uint32, fn func()) (cancel func()) {
	timer := time.AfterFunc(time.Duration(d)*time.Millisecond, fn)
	return func() { timer.Stop() }
}

// defaultFormatTable advertises the one format every shm-backed client
// already has to support (ARGB8888/XRGB8888) with the implicit linear
// modifier, since this bridge does no GPU-side tiling of its own.
func defaultFormatTable() []dmabuf.FormatModifier {
	const (
		fourccARGB8888 = 0x34325241
		fourccXRGB8888 = 0x34325258
		modifierLinear = 0
	)
	return []dmabuf.FormatModifier{
		{Format: fourccARGB8888, Modifier: modifierLinear},
		{Format: fourccXRGB8888, Modifier: modifierLinear},
	}
}

// Run multiplexes the windowing-server connection, the client listener,
// every connected client's socket, and the reaper's wakeup pipe until ctx
// is cancelled or a fatal error occurs.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.running = true
	b.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := b.tick(); err != nil {
			return err
		}
	}
}

// tick runs one iteration of the event loop: wait for readiness, accept
// new clients, dispatch readable ones, pump windowing-server events, drain
// reaped children, and apply any queued OOM disconnects.
func (b *Bridge) tick() error {
	fds, index := b.buildPollFds()

	ts := unix.NsecToTimespec(pollTimeout.Nanoseconds())
	n, err := unix.Ppoll(fds, &ts, nil)
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("waybridge: ppoll: %w", err)
	}
	if n <= 0 {
		b.reap.ConsumeNotifications()
		b.drainReaped()
		return nil
	}

	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		switch index[i] {
		case pollSourceListener:
			b.acceptClients()
		case pollSourceXServer:
			b.pumpXEvents()
		case pollSourceReaper:
			b.reap.ConsumeNotifications()
		case pollSourceClient:
			b.dispatchClient(int(pfd.Fd))
		}
	}

	b.drainReaped()
	b.drainOOM()
	return nil
}

type pollSource int

const (
	pollSourceListener pollSource = iota
	pollSourceXServer
	pollSourceReaper
	pollSourceClient
)

func (b *Bridge) buildPollFds() ([]unix.PollFd, []pollSource) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fds := make([]unix.PollFd, 0, 3+len(b.clients))
	index := make([]pollSource, 0, cap(fds))

	if fd := b.listener.Fd(); fd >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		index = append(index, pollSourceListener)
	}
	if fd := b.xconn.Fd(); fd >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		index = append(index, pollSourceXServer)
	}
	if fd := b.reap.NotifyFd(); fd >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		index = append(index, pollSourceReaper)
	}
	for fd := range b.clients {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		index = append(index, pollSourceClient)
	}
	return fds, index
}

func (b *Bridge) acceptClients() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		conn.Bootstrap(b.deps, b.globals)
		b.mu.Lock()
		b.nextID++
		id := b.nextID
		b.clients[conn.Fd()] = &client{id: id, conn: conn}
		b.mu.Unlock()
		b.log.Debug("client connected", "client", id)
	}
}

func (b *Bridge) dispatchClient(fd int) {
	b.mu.Lock()
	c, ok := b.clients[fd]
	b.mu.Unlock()
	if !ok {
		return
	}

	if err := c.conn.Dispatch(); err != nil {
		b.log.Debug("client disconnected", "client", c.id, "err", err)
		b.disconnectClient(fd, c.id)
	}
}

func (b *Bridge) disconnectClient(fd int, id errguard.ClientID) {
	b.mu.Lock()
	c, ok := b.clients[fd]
	if ok {
		delete(b.clients, fd)
	}
	b.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
	b.oom.Forget(id)
}

// pumpXEvents calls PollEvent until it returns no event, logging each event
// at debug level; events are not routed to the role or surface they belong
// to. PollEvent does not read from the connection, so the loop returns on
// its first call and no windowing-server event is consumed here.
func (b *Bridge) pumpXEvents() {
	for {
		ev, err := b.xconn.PollEvent()
		if err != nil || ev == nil {
			return
		}
		b.log.Debug("windowing-server event", "event", fmt.Sprintf("%T", ev))
	}
}

func (b *Bridge) drainReaped() {
	for _, exit := range b.reap.Drain() {
		b.log.Debug("reaped child", "pid", exit.PID, "code", exit.ExitCode, "signaled", exit.Signaled)
	}
}

func (b *Bridge) drainOOM() {
	for _, id := range b.oom.DrainQueue() {
		b.mu.Lock()
		var fd int
		var found bool
		for f, c := range b.clients {
			if c.id == id {
				fd, found = f, true
				break
			}
		}
		b.mu.Unlock()
		if found {
			b.log.Info("disconnecting client after allocation failure", "client", id)
			b.disconnectClient(fd, id)
		}
	}
}

// Close tears down every collaborator. Safe to call once Run has returned
// or in place of ever calling Run.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	clients := b.clients
	b.clients = nil
	b.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}

	b.reap.Stop()
	_ = b.listener.Close()
	return b.xconn.Close()
}

// Surfaces returns the process-wide surface table that the protocol-object
// decode layer registers roles into.
func (b *Bridge) Surfaces() *role.SurfaceTable { return b.surfaces }

// DmabufImport returns the shared format/modifier table.
func (b *Bridge) DmabufImport() *dmabuf.DmabufImport { return b.dmaImport }
