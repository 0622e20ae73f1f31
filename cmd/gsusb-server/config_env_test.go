package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := validConfig()

	os.Setenv("GSUSB_SERVER_BITRATE", "250000")
	os.Setenv("GSUSB_SERVER_LISTEN_ONLY", "true")
	os.Setenv("GSUSB_SERVER_USB_READ_TIMEOUT", "100ms")
	os.Setenv("GSUSB_SERVER_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("GSUSB_SERVER_BITRATE")
		os.Unsetenv("GSUSB_SERVER_LISTEN_ONLY")
		os.Unsetenv("GSUSB_SERVER_USB_READ_TIMEOUT")
		os.Unsetenv("GSUSB_SERVER_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.bitrate != 250000 {
		t.Fatalf("expected bitrate override, got %d", base.bitrate)
	}
	if !base.listenOnly {
		t.Fatalf("expected listenOnly true")
	}
	if base.usbReadTO != 100*time.Millisecond {
		t.Fatalf("expected usbReadTO 100ms got %v", base.usbReadTO)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{bitrate: 500000}
	os.Setenv("GSUSB_SERVER_BITRATE", "250000")
	t.Cleanup(func() { os.Unsetenv("GSUSB_SERVER_BITRATE") })
	// Simulate user passed -bitrate flag (so env should be ignored)
	if err := applyEnvOverrides(base, map[string]struct{}{"bitrate": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.bitrate != 500000 {
		t.Fatalf("expected bitrate unchanged 500000 got %d", base.bitrate)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{hubBuffer: 512}
	os.Setenv("GSUSB_SERVER_HUB_BUFFER", "notint")
	t.Cleanup(func() { os.Unsetenv("GSUSB_SERVER_HUB_BUFFER") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
