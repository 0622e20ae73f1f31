package main

import (
	"testing"
	"time"

	"github.com/kstaniek/go-gsusb-server/internal/gsusb"
)

func validConfig() *appConfig {
	return &appConfig{
		backend:      "gsusb",
		bitrate:      500000,
		usbReadTO:    50 * time.Millisecond,
		slcanDev:     "/dev/null",
		slcanBaud:    115200,
		slcanReadTO:  50 * time.Millisecond,
		canIf:        "can0",
		listenAddr:   ":20100",
		logFormat:    "text",
		logLevel:     "info",
		hubBuffer:    8,
		hubPolicy:    "drop",
		maxClients:   0,
		clientReadTO: time.Second,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badBackend", func(c *appConfig) { c.backend = "x" }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"badBitrate", func(c *appConfig) { c.bitrate = 123456 }},
		{"listenOnlyAndLoopback", func(c *appConfig) { c.listenOnly = true; c.loopback = true }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badUSBReadTO", func(c *appConfig) { c.usbReadTO = 0 }},
		{"badSlcanBaud", func(c *appConfig) { c.slcanBaud = 0 }},
		{"badSlcanTO", func(c *appConfig) { c.slcanReadTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
	}
	for _, tc := range tests {
		base := validConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestConfigValidate_SocketCANSkipsBitrateTable(t *testing.T) {
	c := validConfig()
	c.backend = "socketcan"
	c.bitrate = 83000 // kernel's business, not ours
	if err := c.validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigMode_Flags(t *testing.T) {
	c := validConfig()
	if got := c.mode(); got != gsusb.ModeNormal {
		t.Fatalf("normal mode = %v", got)
	}
	c.listenOnly = true
	c.oneShot = true
	c.noEchoBack = true
	want := gsusb.ModeListenOnly | gsusb.ModeOneShot | gsusb.ModeNoEchoBack
	if got := c.mode(); got != want {
		t.Fatalf("mode = %#x want %#x", uint32(got), uint32(want))
	}
}
