package main

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-gsusb-server/internal/gsusb"
	"github.com/kstaniek/go-gsusb-server/internal/hub"
)

// fakeErrTransport always fails bulk reads to trigger backoff.
type fakeErrTransport struct{ fakeUSBTransport }

func (f *fakeErrTransport) BulkRead(length int, timeout time.Duration) ([]byte, error) {
	return nil, io.ErrNoProgress
}

func TestGSUSBBackendBackoffProgression(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	openGSUSBTransport = func(path string) (gsusb.Transport, error) { return &fakeErrTransport{}, nil }
	defer func() {
		openGSUSBTransport = func(path string) (gsusb.Transport, error) { return nil, io.ErrClosedPipe }
	}()

	var mu sync.Mutex
	var seen []time.Duration
	sleepFn = func(d time.Duration) {
		mu.Lock()
		if len(seen) < 6 { // capture first few entries
			seen = append(seen, d)
			if len(seen) == 6 {
				cancel()
			}
		}
		mu.Unlock()
	}
	defer func() { sleepFn = time.Sleep }()

	h := hub.New()
	var wg sync.WaitGroup
	_, cleanup, err := initGSUSBBackend(ctx, validConfig(), h, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initGSUSBBackend: %v", err)
	}
	cleanup()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 3 {
		t.Fatalf("expected at least 3 backoff samples, got %d", len(seen))
	}
	// Validate non-decreasing, starts at min, and never exceeds max.
	prev := rxBackoffMin / 4 // allow first comparison
	for i, d := range seen {
		if d < prev {
			t.Fatalf("backoff decreased at %d: prev=%v cur=%v", i, prev, d)
		}
		if d > rxBackoffMax {
			t.Fatalf("backoff exceeded max at %d: %v > %v", i, d, rxBackoffMax)
		}
		prev = d
	}
	if seen[0] != rxBackoffMin {
		t.Fatalf("expected first backoff %v got %v", rxBackoffMin, seen[0])
	}
}
