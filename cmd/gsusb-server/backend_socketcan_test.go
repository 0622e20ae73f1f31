//go:build linux

package main

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-gsusb-server/internal/can"
	"github.com/kstaniek/go-gsusb-server/internal/hub"
	"github.com/kstaniek/go-gsusb-server/internal/metrics"
	"github.com/kstaniek/go-gsusb-server/internal/socketcan"
)

type fakeSocketDev struct {
	frames   []can.Frame
	idx      int
	errAfter bool
}

func (d *fakeSocketDev) ReadFrame(fr *can.Frame) error {
	if d.idx < len(d.frames) {
		*fr = d.frames[d.idx]
		d.idx++
		return nil
	}
	if d.errAfter {
		return io.ErrUnexpectedEOF
	}
	time.Sleep(10 * time.Millisecond)
	return io.EOF
}
func (d *fakeSocketDev) WriteFrame(fr can.Frame) error { return nil }
func (d *fakeSocketDev) Close() error                  { return nil }

func TestInitSocketCANBackendBasic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frame := can.Frame{EchoID: can.NoEchoID, CANID: 0x555, DLC: 3, Data: [8]byte{0x01, 0x02, 0x03}}
	openSocketCANDevice = func(iface string) (socketcan.Dev, error) {
		return &fakeSocketDev{frames: []can.Frame{frame}, errAfter: true}, nil
	}
	defer func() {
		openSocketCANDevice = func(iface string) (socketcan.Dev, error) { return socketcan.Open(iface) }
	}()

	h := hub.New()
	c := &hub.Client{Out: make(chan can.Frame, 1), Closed: make(chan struct{})}
	h.Add(c)
	cfg := validConfig()
	cfg.backend = "socketcan"
	cfg.canIf = "vcan0"
	var wg sync.WaitGroup
	send, cleanup, err := initSocketCANBackend(ctx, cfg, h, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initSocketCANBackend: %v", err)
	}
	defer cleanup()

	select {
	case fr := <-c.Out:
		if fr != frame {
			t.Fatalf("unexpected frame: %+v", fr)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for socketcan frame")
	}

	if err := send(frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}
	// Allow read error path to trigger once.
	time.Sleep(30 * time.Millisecond)
	snap := metrics.Snap()
	if snap.SocketCANRx == 0 {
		t.Fatalf("expected SocketCANRx > 0")
	}
	if snap.Errors == 0 {
		t.Fatalf("expected at least one error increment (read error after frame)")
	}
}
