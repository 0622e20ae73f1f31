package gsusb

import (
	"errors"
	"time"
)

// ErrReadTimeout is returned by Transport.BulkRead when no data arrived
// within the caller's timeout window. Device.Read maps it to a non-error
// "no data" outcome so polling loops can treat it as normal.
var ErrReadTimeout = errors.New("gsusb: read timeout")

// Transport is the narrow USB capability the driver core depends on but never
// implements. Production code adapts a real USB device handle (internal/usb);
// tests plug in fakes.
//
// A timeout of 0 on BulkRead means block indefinitely; that is a transport
// contract, the core has no timeout logic of its own.
type Transport interface {
	// ControlOut issues a vendor OUT control transfer (request type 0x41).
	ControlOut(request uint8, value, index uint16, data []byte) error
	// ControlIn issues a vendor IN control transfer (request type 0xC1) and
	// returns up to length bytes.
	ControlIn(request uint8, value, index uint16, length int) ([]byte, error)
	// BulkWrite submits one buffer to the OUT endpoint.
	BulkWrite(data []byte) error
	// BulkRead reads up to length bytes from the IN endpoint, returning
	// ErrReadTimeout when the window expires without data.
	BulkRead(length int, timeout time.Duration) ([]byte, error)
	// Reset performs a USB device reset so the adapter can be restarted
	// without re-enumeration.
	Reset() error
	// SerialNumber reads the device serial number string descriptor.
	SerialNumber() (string, error)
	Close() error
}
