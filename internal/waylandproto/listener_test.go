//go:build linux

package waylandproto

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestListenAt_AcceptReturnsUsableClientConn(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "wayland-test")

	ln, err := ListenAt(sockPath)
	if err != nil {
		t.Fatalf("ListenAt: %v", err)
	}
	defer ln.Close()

	if ln.Fd() < 0 {
		t.Fatal("expected a non-negative listener fd")
	}

	clientDone := make(chan error, 1)
	go func() {
		c, err := net.Dial("unix", sockPath)
		if err != nil {
			clientDone <- err
			return
		}
		defer c.Close()
		clientDone <- nil
	}()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer conn.Close()

	if err := <-clientDone; err != nil {
		t.Fatalf("client dial: %v", err)
	}
	if conn.Fd() < 0 {
		t.Fatal("expected a non-negative client fd")
	}
	if conn.DisplayID() != 1 {
		t.Fatalf("expected display object id 1, got %d", conn.DisplayID())
	}
}

func TestListenAt_RemovesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "wayland-stale")

	// A unix socket file left behind with nothing listening on it.
	ln1, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("setup listen: %v", err)
	}
	ln1.(*net.UnixListener).SetUnlinkOnClose(false)
	ln1.Close() // closes the listener but leaves the socket file on disk

	if _, err := os.Stat(sockPath); err != nil {
		t.Fatalf("expected stale socket file to still exist: %v", err)
	}

	ln2, err := ListenAt(sockPath)
	if err != nil {
		t.Fatalf("expected ListenAt to clean up the stale socket, got: %v", err)
	}
	defer ln2.Close()
}

func TestListenAt_RejectsLiveSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "wayland-live")

	ln1, err := ListenAt(sockPath)
	if err != nil {
		t.Fatalf("first ListenAt: %v", err)
	}
	defer ln1.Close()

	_, err = ListenAt(sockPath)
	if err == nil {
		t.Fatal("expected second ListenAt on a live socket to fail")
	}
}
