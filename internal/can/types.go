package can

import (
	"fmt"
	"strings"
)

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000 // extended frame format (29-bit id)
	CAN_RTR_FLAG = 0x40000000 // remote transmission request
	CAN_ERR_FLAG = 0x20000000 // error message frame
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// Echo id sentinels used by gs_usb adapters. Host-transmitted frames carry
// EchoID 0 and come back as echo confirmations with the same id; frames
// originating on the bus carry NoEchoID.
const (
	EchoID   = 0
	NoEchoID = 0xFFFFFFFF
)

// MaxDLC is the classic CAN payload limit.
const MaxDLC = 8

// Frame is the gs_usb-shaped CAN frame used as currency across the gateway.
// CANID packs EFF/RTR/ERR flags into its upper bits like SocketCAN; the low
// 29 bits are the arbitration id (or an error-class mask for error frames).
// Only the first DLC bytes of Data are meaningful.
type Frame struct {
	EchoID      uint32
	CANID       uint32
	DLC         uint8
	Channel     uint8
	Flags       uint8
	Reserved    uint8
	Data        [8]byte
	TimestampUS uint32
}

// ArbitrationID returns the id without flag bits.
func (f Frame) ArbitrationID() uint32 { return f.CANID & CAN_EFF_MASK }

// IsExtended reports whether the frame uses the 29-bit extended format.
func (f Frame) IsExtended() bool { return f.CANID&CAN_EFF_FLAG != 0 }

// IsRemote reports whether the frame is a remote transmission request.
func (f Frame) IsRemote() bool { return f.CANID&CAN_RTR_FLAG != 0 }

// IsError reports whether the frame is a synthetic bus-error frame.
func (f Frame) IsError() bool { return f.CANID&CAN_ERR_FLAG != 0 }

// IsEcho reports whether the frame is the device's confirmation of a
// host-transmitted frame rather than bus traffic.
func (f Frame) IsEcho() bool { return f.EchoID != NoEchoID }

// Timestamp returns the device-clock timestamp in seconds.
func (f Frame) Timestamp() float64 { return float64(f.TimestampUS) / 1e6 }

// String renders the frame candump-style: "     123   [4]  DE AD BE EF".
func (f Frame) String() string {
	if f.IsRemote() {
		return fmt.Sprintf("%8X   [%d]  remote request", f.ArbitrationID(), f.DLC)
	}
	n := int(f.DLC)
	if n > MaxDLC {
		n = MaxDLC
	}
	parts := make([]string, 0, n)
	for _, b := range f.Data[:n] {
		parts = append(parts, fmt.Sprintf("%02X", b))
	}
	return fmt.Sprintf("%8X   [%d]  %s", f.ArbitrationID(), f.DLC, strings.Join(parts, " "))
}
