package usb

import (
	"context"
	"errors"

	"github.com/kstaniek/go-gsusb-server/internal/can"
	"github.com/kstaniek/go-gsusb-server/internal/logging"
	"github.com/kstaniek/go-gsusb-server/internal/metrics"
	"github.com/kstaniek/go-gsusb-server/internal/transport"
)

var ErrTxOverflow = errors.New("usb tx overflow")

// FrameSender is implemented by *gsusb.Device.
type FrameSender interface {
	Send(can.Frame) error
}

// TXWriter funnels bulk OUT submissions through a single goroutine. The usbfs
// handle tolerates only one in-flight bulk OUT submitter, so all producers
// enqueue here instead of writing to the device directly.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a USB TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, dev FrameSender, buf int) *TXWriter {
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrUSBWrite)
			logging.L().Error("usb_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncUSBTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrUSBOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, dev.Send, hooks)}
}

// SendFrame queues a frame for asynchronous bulk write (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }
