//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kstaniek/go-gsusb-server/internal/can"
	"github.com/kstaniek/go-gsusb-server/internal/hub"
)

// initSocketCANBackend is unavailable off Linux; SocketCAN is a kernel feature.
func initSocketCANBackend(context.Context, *appConfig, *hub.Hub, *slog.Logger, *sync.WaitGroup) (func(can.Frame) error, func(), error) {
	return nil, func() {}, errors.New("socketcan backend requires linux")
}
