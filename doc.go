//go:build linux

// Package waybridge implements a display-server bridge: it listens on the
// compositor-protocol socket like a compositor would, and realizes each
// connecting client's surfaces as real windows on an upstream windowing
// server it is itself a client of.
//
// # Architecture
//
// The Bridge type owns every collaborator the core packages need:
//
//   - internal/xserver: the outbound connection to the real windowing
//     server (the bridge is an X11 client of it).
//   - internal/waylandproto: the inbound compositor-protocol listener,
//     one ClientConn per connected client.
//   - internal/role, internal/surface, internal/clock, internal/release,
//     internal/dmabuf, internal/errguard: the protocol-independent core
//     state machines, driven once a client's requests are decoded.
//   - internal/reaper: SIGCHLD-driven reaping for any subprocess the
//     bridge itself spawns.
//
// # Usage
//
//	cfg := waybridge.ConfigFromEnv()
//	b, err := waybridge.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	if err := b.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Configuration
//
// ConfigFromEnv recognizes SYNCHRONIZE, APPLY_STATE_WORKAROUND, and
// DIRECT_STATE_CHANGES, matching the CLI's documented environment surface.
package waybridge
