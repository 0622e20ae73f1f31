package gsusb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/kstaniek/go-gsusb-server/internal/can"
)

// USB identification of gs_usb (candleLight) adapters.
const (
	VendorID  = 0x1D50
	ProductID = 0x606F
)

// Vendor control requests (bRequest values).
const (
	breqHostFormat   = 0
	breqBitTiming    = 1
	breqMode         = 2
	breqBerr         = 3
	breqBTConst      = 4
	breqDeviceConfig = 5
)

// Mode selects the CAN controller operating mode. Flags combine by OR.
type Mode uint32

const (
	ModeNormal     Mode = 0
	ModeListenOnly Mode = 1 << 0
	ModeLoopBack   Mode = 1 << 1
	ModeOneShot    Mode = 1 << 3
	ModeNoEchoBack Mode = 1 << 8

	// modeHWTimestamp asks the firmware to stamp frames with its own clock.
	// Start always forces it on; the rest of the gateway relies on
	// timestamp_us being populated.
	modeHWTimestamp Mode = 1 << 4
)

// mode command words for the MODE control transfer
const (
	canModeReset = 0
	canModeStart = 1
)

// State tracks the device-control state machine. The device itself holds the
// authoritative configuration; State exists so restarts stay representable.
type State int

const (
	StateUninitialized State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// Version is a firmware/hardware revision in the device's fixed-point x10
// encoding (42 renders as "4.2").
type Version uint32

func (v Version) String() string { return fmt.Sprintf("%d.%d", v/10, v%10) }

// DeviceInfo is the decoded DEVICE_CONFIG response.
type DeviceInfo struct {
	Firmware Version
	Hardware Version
}

func (i DeviceInfo) String() string { return fmt.Sprintf("fw %s hw %s", i.Firmware, i.Hardware) }

// Device drives one gs_usb adapter through a Transport. It is not safe for
// concurrent use; run one Device per physical adapter and serialize sends
// yourself if the transport is not reentrant.
type Device struct {
	t     Transport
	codec Codec
	state State
}

// NewDevice wraps a transport. The adapter stays untouched until Start.
func NewDevice(t Transport) *Device { return &Device{t: t} }

// State returns the current control-protocol state.
func (d *Device) State() State { return d.state }

// Start resets the adapter and switches the CAN controller on with the given
// mode flags. The reset is best-effort; it exists so repeated starts work
// without a full USB re-enumeration. Transport errors from the MODE transfer
// are surfaced.
func (d *Device) Start(mode Mode) error {
	_ = d.t.Reset()

	var payload [8]byte
	binary.LittleEndian.PutUint32(payload[0:4], canModeStart)
	binary.LittleEndian.PutUint32(payload[4:8], uint32(mode|modeHWTimestamp))
	if err := d.t.ControlOut(breqMode, 0, 0, payload[:]); err != nil {
		return fmt.Errorf("gsusb start: %w", err)
	}
	d.state = StateStarted
	return nil
}

// Stop switches the CAN controller off. Teardown is best-effort: the device
// may already be unplugged, so transport errors are swallowed and Stop always
// reports success.
func (d *Device) Stop() {
	var payload [8]byte // mode word and flags both zero
	_ = d.t.ControlOut(breqMode, 0, 0, payload[:])
	d.state = StateStopped
}

// SetTiming pushes bit-timing registers to the device. Precondition: the
// device must not be started; changing timing on a running controller has
// undefined hardware behavior.
func (d *Device) SetTiming(bt BitTiming) error {
	var payload [20]byte
	binary.LittleEndian.PutUint32(payload[0:4], bt.PropSeg)
	binary.LittleEndian.PutUint32(payload[4:8], bt.PhaseSeg1)
	binary.LittleEndian.PutUint32(payload[8:12], bt.PhaseSeg2)
	binary.LittleEndian.PutUint32(payload[12:16], bt.SJW)
	binary.LittleEndian.PutUint32(payload[16:20], bt.BRP)
	if err := d.t.ControlOut(breqBitTiming, 0, 0, payload[:]); err != nil {
		return fmt.Errorf("gsusb set timing: %w", err)
	}
	return nil
}

// SetBitrate looks up the vetted timing for a standard bitrate and applies it.
func (d *Device) SetBitrate(bitrate uint32) error {
	bt, err := TimingForBitrate(bitrate)
	if err != nil {
		return err
	}
	return d.SetTiming(bt)
}

// Info queries hardware and firmware revisions via DEVICE_CONFIG.
func (d *Device) Info() (DeviceInfo, error) {
	b, err := d.t.ControlIn(breqDeviceConfig, 0, 0, 12)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("gsusb device config: %w", err)
	}
	if len(b) != 12 {
		return DeviceInfo{}, fmt.Errorf("gsusb device config: short response (%d bytes)", len(b))
	}
	// 4 reserved bytes, then fw and hw revisions as x10 fixed point.
	return DeviceInfo{
		Firmware: Version(binary.LittleEndian.Uint32(b[4:8])),
		Hardware: Version(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

// SerialNumber reads the adapter serial from its string descriptor.
func (d *Device) SerialNumber() (string, error) { return d.t.SerialNumber() }

// Send transmits one frame on the bus.
func (d *Device) Send(f can.Frame) error {
	if err := d.t.BulkWrite(d.codec.Marshal(f)); err != nil {
		return fmt.Errorf("gsusb send: %w", err)
	}
	return nil
}

// Read polls the adapter for one frame. When no frame arrives within the
// timeout it returns ok=false with a nil error so callers can loop without
// error handling; any other transport failure is surfaced.
func (d *Device) Read(timeout time.Duration) (can.Frame, bool, error) {
	b, err := d.t.BulkRead(FrameSize, timeout)
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			return can.Frame{}, false, nil
		}
		return can.Frame{}, false, fmt.Errorf("gsusb read: %w", err)
	}
	f, err := d.codec.Unmarshal(b)
	if err != nil {
		return can.Frame{}, false, err
	}
	return f, true, nil
}

// Close releases the underlying transport.
func (d *Device) Close() error { return d.t.Close() }
