package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-gsusb-server/internal/can"
	"github.com/kstaniek/go-gsusb-server/internal/gsusb"
	"github.com/kstaniek/go-gsusb-server/internal/hub"
	"github.com/kstaniek/go-gsusb-server/internal/metrics"
	"github.com/kstaniek/go-gsusb-server/internal/usb"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openGSUSBTransport is a hook for tests (overridden in unit tests).
var openGSUSBTransport = func(path string) (gsusb.Transport, error) {
	if path == "" {
		return usb.Open()
	}
	return usb.OpenPath(path)
}

// initGSUSBBackend opens the adapter, configures bitrate and mode, and
// launches the bulk IN RX loop.
func initGSUSBBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(can.Frame) error, func(), error) {
	t, err := openGSUSBTransport(cfg.usbPath)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open gs_usb adapter: %w", err)
	}
	dev := gsusb.NewDevice(t)
	if info, err := dev.Info(); err == nil {
		serial, _ := dev.SerialNumber()
		l.Info("gsusb_open", "fw", info.Firmware.String(), "hw", info.Hardware.String(), "serial", serial)
	} else {
		l.Warn("gsusb_device_config_failed", "error", err)
	}
	if err := dev.SetBitrate(cfg.bitrate); err != nil {
		_ = dev.Close()
		return nil, func() {}, fmt.Errorf("set bitrate %d: %w", cfg.bitrate, err)
	}
	if err := dev.Start(cfg.mode()); err != nil {
		_ = dev.Close()
		return nil, func() {}, fmt.Errorf("start adapter: %w", err)
	}
	l.Info("gsusb_started", "bitrate", cfg.bitrate, "mode", uint32(cfg.mode()))

	tw := usb.NewTXWriter(ctx, dev, txQueueSize)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("gsusb_rx_end")
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			fr, ok, err := dev.Read(cfg.usbReadTO)
			if err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				metrics.IncError(metrics.ErrUSBRead)
				l.Warn("gsusb_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
				continue
			}
			backoff = rxBackoffMin
			if !ok { // poll timeout, no frame
				continue
			}
			if fr.IsEcho() {
				// Adapter confirmation of our own TX; not bus traffic.
				metrics.IncUSBEcho()
				continue
			}
			if fr.IsError() {
				rep := can.DecodeError(fr)
				metrics.IncBusError()
				l.Warn("bus_error", "report", rep.String())
			}
			metrics.IncUSBRx()
			h.Broadcast(fr)
		}
	}()
	cleanup := func() {
		tw.Close()
		dev.Stop()
		_ = dev.Close()
	}
	return tw.SendFrame, cleanup, nil
}
