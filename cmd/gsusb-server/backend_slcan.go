package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/kstaniek/go-gsusb-server/internal/can"
	"github.com/kstaniek/go-gsusb-server/internal/hub"
	"github.com/kstaniek/go-gsusb-server/internal/metrics"
	"github.com/kstaniek/go-gsusb-server/internal/slcan"
)

// openSlcanPort is a hook for tests (overridden in unit tests).
var openSlcanPort = slcan.Open

// initSlcanBackend opens the serial port, pushes the LAWICEL setup sequence
// and launches the RX loop.
func initSlcanBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(can.Frame) error, func(), error) {
	cmds, ok := slcan.SetupCommands(cfg.bitrate)
	if !ok {
		return nil, func() {}, fmt.Errorf("bitrate %d has no slcan speed code", cfg.bitrate)
	}
	sp, err := openSlcanPort(cfg.slcanDev, cfg.slcanBaud, cfg.slcanReadTO)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open slcan: %w", err)
	}
	for _, cmd := range cmds {
		if _, err := sp.Write(cmd); err != nil {
			_ = sp.Close()
			return nil, func() {}, fmt.Errorf("slcan setup %q: %w", cmd, err)
		}
	}
	l.Info("slcan_open", "device", cfg.slcanDev, "baud", cfg.slcanBaud, "bitrate", cfg.bitrate)
	codec := slcan.Codec{}
	w := slcan.NewTXWriter(ctx, sp, codec, txQueueSize)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("slcan_rx_end")
		buf := make([]byte, slcanReadBufSize)
		acc := bytes.NewBuffer(nil)
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := sp.Read(buf)
			if n > 0 {
				acc.Write(buf[:n])
				_ = codec.DecodeStream(acc, func(fr can.Frame) { h.Broadcast(fr) })
				if acc.Len() == 0 && cap(acc.Bytes()) > largeBufferReclaimThreshold {
					acc = bytes.NewBuffer(nil)
				}
				backoff = rxBackoffMin
			}
			if err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				var perr *os.PathError
				if errors.As(err, &perr) {
					return // device removed or fatal
				}
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					continue // serial read timeout shows up as EOF
				}
				metrics.IncError(metrics.ErrSlcanRead)
				l.Warn("slcan_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
			}
		}
	}()
	cleanup := func() {
		w.Close()
		_, _ = sp.Write(slcan.CloseCommand())
		_ = sp.Close()
	}
	return w.SendFrame, cleanup, nil
}
