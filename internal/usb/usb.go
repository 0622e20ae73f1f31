// Package usb adapts a kevmo314/go-usb device handle to the narrow
// gsusb.Transport capability the driver core consumes.
package usb

import (
	"errors"
	"fmt"
	"time"

	gousb "github.com/kevmo314/go-usb"

	"github.com/kstaniek/go-gsusb-server/internal/gsusb"
)

const (
	ifaceNum    = 0
	endpointIn  = 0x81
	endpointOut = 0x02

	// vendor request types, recipient=device
	requestTypeOut = 0x41
	requestTypeIn  = 0xC1

	ctrlTimeout  = 1 * time.Second
	writeTimeout = 1 * time.Second
)

// Handle owns an opened, claimed gs_usb USB device.
type Handle struct {
	dev *gousb.DeviceHandle
}

var _ gsusb.Transport = (*Handle)(nil)

// Scan lists device paths of all attached gs_usb adapters.
func Scan() ([]string, error) {
	devices, err := gousb.DeviceList()
	if err != nil {
		return nil, fmt.Errorf("usb scan: %w", err)
	}
	var paths []string
	for _, d := range devices {
		if d.Descriptor.VendorID == gsusb.VendorID && d.Descriptor.ProductID == gsusb.ProductID {
			paths = append(paths, d.Path)
		}
	}
	return paths, nil
}

// Open claims the first attached gs_usb adapter.
func Open() (*Handle, error) {
	dev, err := gousb.OpenDevice(gsusb.VendorID, gsusb.ProductID)
	if err != nil {
		return nil, fmt.Errorf("usb open %04x:%04x: %w", gsusb.VendorID, gsusb.ProductID, err)
	}
	return claim(dev)
}

// OpenPath claims the adapter at a specific /dev/bus/usb path (from Scan),
// for hosts with more than one adapter attached.
func OpenPath(path string) (*Handle, error) {
	devices, err := gousb.DeviceList()
	if err != nil {
		return nil, fmt.Errorf("usb open %s: %w", path, err)
	}
	for _, d := range devices {
		if d.Path == path {
			dev, err := d.Open()
			if err != nil {
				return nil, fmt.Errorf("usb open %s: %w", path, err)
			}
			return claim(dev)
		}
	}
	return nil, fmt.Errorf("usb open %s: %w", path, gousb.ErrDeviceNotFound)
}

func claim(dev *gousb.DeviceHandle) (*Handle, error) {
	// The kernel gs_usb driver may hold the interface; steal it so we can do
	// userspace IO. Failure to detach is not fatal when no driver is bound.
	if active, err := dev.KernelDriverActive(ifaceNum); err == nil && active {
		_ = dev.DetachKernelDriver(ifaceNum)
	}
	if err := dev.ClaimInterface(ifaceNum); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("usb claim interface %d: %w", ifaceNum, err)
	}
	return &Handle{dev: dev}, nil
}

// ControlOut issues a vendor OUT control transfer.
func (h *Handle) ControlOut(request uint8, value, index uint16, data []byte) error {
	if _, err := h.dev.ControlTransfer(requestTypeOut, request, value, index, data, ctrlTimeout); err != nil {
		return fmt.Errorf("usb control out 0x%02x: %w", request, err)
	}
	return nil
}

// ControlIn issues a vendor IN control transfer and returns the response.
func (h *Handle) ControlIn(request uint8, value, index uint16, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := h.dev.ControlTransfer(requestTypeIn, request, value, index, buf, ctrlTimeout)
	if err != nil {
		return nil, fmt.Errorf("usb control in 0x%02x: %w", request, err)
	}
	return buf[:n], nil
}

// BulkWrite submits one buffer to the OUT endpoint.
func (h *Handle) BulkWrite(data []byte) error {
	if _, err := h.dev.BulkTransfer(endpointOut, data, writeTimeout); err != nil {
		return fmt.Errorf("usb bulk write: %w", err)
	}
	return nil
}

// BulkRead reads up to length bytes from the IN endpoint. A timeout of 0
// blocks until data arrives; an expired window maps to gsusb.ErrReadTimeout.
func (h *Handle) BulkRead(length int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, length)
	n, err := h.dev.BulkTransfer(endpointIn, buf, timeout)
	if err != nil {
		if errors.Is(err, gousb.ErrTimeout) {
			return nil, gsusb.ErrReadTimeout
		}
		return nil, fmt.Errorf("usb bulk read: %w", err)
	}
	return buf[:n], nil
}

// Reset performs a USB device reset so a started adapter can be restarted
// without unplugging it.
func (h *Handle) Reset() error { return h.dev.ResetDevice() }

// SerialNumber reads the serial string descriptor.
func (h *Handle) SerialNumber() (string, error) {
	desc := h.dev.Descriptor()
	if desc.SerialNumberIndex == 0 {
		return "", nil
	}
	return h.dev.StringDescriptor(desc.SerialNumberIndex)
}

// Close releases the interface and the device handle.
func (h *Handle) Close() error {
	_ = h.dev.ReleaseInterface(ifaceNum)
	return h.dev.Close()
}
