package gsusb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-gsusb-server/internal/can"
	"github.com/kstaniek/go-gsusb-server/internal/metrics"
)

// FrameSize is the fixed size of a gs_usb host frame on the wire.
const FrameSize = 24

// ErrBadLength is returned when a buffer is not exactly FrameSize bytes.
var ErrBadLength = errors.New("gsusb: frame must be 24 bytes")

// Codec encodes/decodes gs_usb host frames. The same 24-byte little-endian
// layout travels over the USB bulk endpoints and over TCP to gateway clients.
// Stateless and safe for concurrent use.
//
// Layout (mandated by the adapter firmware, bit-exact):
//
//	offset 0  u32 echo_id
//	offset 4  u32 can_id      (bit31 EFF, bit30 RTR, bit29 ERR, low 29 = id)
//	offset 8  u8  dlc
//	offset 9  u8  channel
//	offset 10 u8  flags
//	offset 11 u8  reserved
//	offset 12 u8[8] data
//	offset 20 u32 timestamp_us
type Codec struct{}

// Marshal packs a frame into its 24-byte wire form.
func (Codec) Marshal(f can.Frame) []byte {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.EchoID)
	binary.LittleEndian.PutUint32(buf[4:8], f.CANID)
	buf[8] = f.DLC
	buf[9] = f.Channel
	buf[10] = f.Flags
	buf[11] = f.Reserved
	copy(buf[12:20], f.Data[:])
	binary.LittleEndian.PutUint32(buf[20:24], f.TimestampUS)
	return buf
}

// Unmarshal decodes a 24-byte buffer into a frame. The codec performs no
// semantic validation beyond the length check; dlc range and flag sanity are
// the caller's concern.
func (Codec) Unmarshal(b []byte) (can.Frame, error) {
	var f can.Frame
	if len(b) != FrameSize {
		metrics.IncMalformed()
		return f, fmt.Errorf("%w (got %d)", ErrBadLength, len(b))
	}
	f.EchoID = binary.LittleEndian.Uint32(b[0:4])
	f.CANID = binary.LittleEndian.Uint32(b[4:8])
	f.DLC = b[8]
	f.Channel = b[9]
	f.Flags = b[10]
	f.Reserved = b[11]
	copy(f.Data[:], b[12:20])
	f.TimestampUS = binary.LittleEndian.Uint32(b[20:24])
	return f, nil
}

// Decode reads exactly one frame from r. It returns io.EOF at a clean frame
// boundary and io.ErrUnexpectedEOF mid-frame.
func (c *Codec) Decode(r io.Reader) (can.Frame, error) {
	var buf [FrameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			metrics.IncMalformed()
		}
		return can.Frame{}, err
	}
	return c.Unmarshal(buf[:])
}

// DecodeN decodes up to max frames (all available if max<=0) invoking onFrame
// for each. It returns the number decoded and the terminal error (io.EOF at a
// clean end).
func (c *Codec) DecodeN(r io.Reader, max int, onFrame func(can.Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}

// Encode packs frames into one contiguous buffer.
func (c *Codec) Encode(frames []can.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(frames)*FrameSize)
	for _, f := range frames {
		buf = append(buf, c.Marshal(f)...)
	}
	return buf
}

// EncodeTo writes the wire representation of frames to w and returns bytes written.
func (c *Codec) EncodeTo(w io.Writer, frames []can.Frame) (int, error) {
	var total int
	for _, f := range frames {
		n, err := w.Write(c.Marshal(f))
		total += n
		if err != nil {
			return total, fmt.Errorf("gsusb encode: %w", err)
		}
	}
	return total, nil
}
