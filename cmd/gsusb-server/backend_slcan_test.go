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
	"github.com/kstaniek/go-gsusb-server/internal/slcan"
)

// fakeSlcanPort implements slcan.Port for tests.
type fakeSlcanPort struct {
	mu     sync.Mutex
	reads  [][]byte
	idx    int
	writes [][]byte
}

func (f *fakeSlcanPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.idx >= len(f.reads) {
		f.mu.Unlock()
		// after delivering all data, block briefly then return EOF repeatedly
		time.Sleep(10 * time.Millisecond)
		return 0, io.EOF
	}
	chunk := f.reads[f.idx]
	f.idx++
	f.mu.Unlock()
	return copy(p, chunk), nil
}

func (f *fakeSlcanPort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
	return len(p), nil
}

func (f *fakeSlcanPort) Close() error { return nil }

func (f *fakeSlcanPort) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func TestInitSlcanBackendBasic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fp := &fakeSlcanPort{reads: [][]byte{[]byte("t1232AABB\r")}}
	openSlcanPort = func(name string, baud int, to time.Duration) (slcan.Port, error) { return fp, nil }
	defer func() { openSlcanPort = slcan.Open }()

	h := hub.New()
	c := &hub.Client{Out: make(chan can.Frame, 1), Closed: make(chan struct{})}
	h.Add(c)

	cfg := validConfig()
	cfg.backend = "slcan"
	var wg sync.WaitGroup
	send, cleanup, err := initSlcanBackend(ctx, cfg, h, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initSlcanBackend: %v", err)
	}
	defer cleanup()

	// Setup sequence went out first: close, speed, open.
	writes := fp.written()
	if len(writes) < 3 || string(writes[0]) != "C\r" || string(writes[1]) != "S6\r" || string(writes[2]) != "O\r" {
		t.Fatalf("setup writes = %q", writes)
	}

	select {
	case fr := <-c.Out:
		if fr.ArbitrationID() != 0x123 || fr.DLC != 2 || fr.Data[0] != 0xAA {
			t.Fatalf("unexpected frame: %+v", fr)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for frame")
	}

	if err := send(can.Frame{CANID: 0x321, DLC: 1, Data: [8]byte{0xFF}}); err != nil {
		t.Fatalf("send frame: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for len(fp.written()) < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	writes = fp.written()
	if string(writes[len(writes)-1]) != "t3211FF\r" {
		t.Fatalf("tx record = %q", writes[len(writes)-1])
	}

	if metrics.Snap().SlcanRx == 0 {
		t.Fatalf("expected SlcanRx > 0")
	}
}

func TestInitSlcanBackendUnsupportedBitrate(t *testing.T) {
	cfg := validConfig()
	cfg.backend = "slcan"
	cfg.bitrate = 83333 // in the gs_usb table but has no slcan speed code
	var wg sync.WaitGroup
	_, cleanup, err := initSlcanBackend(context.Background(), cfg, hub.New(), testLogger(), &wg)
	defer cleanup()
	if err == nil {
		t.Fatal("expected error for bitrate without speed code")
	}
}
