package slcan

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/kstaniek/go-gsusb-server/internal/can"
	"github.com/kstaniek/go-gsusb-server/internal/metrics"
)

// Codec implements the ASCII slcan (LAWICEL) framing used by serial CAN
// adapters. Records are CR-terminated:
//
//	t123 2 AB CD   ->  "t1232ABCD\r"   standard data frame
//	T + 8 hex id   ->  "T0000123480\r" extended data frame
//	r/R            ->  remote request, no data bytes
//
// Adapter status replies ('\r', '\a', 'z', 'Z') are not frames and are
// skipped by the stream decoder.
type Codec struct{}

// CompactBuffer reclaims consumed prefix capacity when the accumulation
// buffer grows too large relative to unread bytes. Returns true if compaction
// occurred.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// Encode renders one frame as an slcan record. Error frames have no slcan
// representation and encode to nil.
func (Codec) Encode(f can.Frame) []byte {
	if f.IsError() {
		return nil
	}
	dlc := f.DLC
	if dlc > can.MaxDLC {
		dlc = can.MaxDLC
	}
	var buf bytes.Buffer
	switch {
	case f.IsExtended() && f.IsRemote():
		fmt.Fprintf(&buf, "R%08X%d", f.ArbitrationID(), dlc)
	case f.IsExtended():
		fmt.Fprintf(&buf, "T%08X%d", f.ArbitrationID(), dlc)
	case f.IsRemote():
		fmt.Fprintf(&buf, "r%03X%d", f.ArbitrationID()&can.CAN_SFF_MASK, dlc)
	default:
		fmt.Fprintf(&buf, "t%03X%d", f.ArbitrationID()&can.CAN_SFF_MASK, dlc)
	}
	if !f.IsRemote() {
		for _, b := range f.Data[:dlc] {
			fmt.Fprintf(&buf, "%02X", b)
		}
	}
	buf.WriteByte('\r')
	return buf.Bytes()
}

// DecodeStream drains complete CR-terminated records from in, emitting frames
// via out. Unparseable records are counted as malformed and skipped; partial
// trailing data stays buffered for the next read.
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	for {
		_ = CompactBuffer(in)
		data := in.Bytes()
		idx := bytes.IndexByte(data, '\r')
		if idx < 0 {
			// Bell is the adapter's NAK; it has no terminator.
			for len(data) > 0 && data[0] == '\a' {
				metrics.IncMalformed()
				in.Next(1)
				data = in.Bytes()
			}
			return nil
		}
		line := data[:idx]
		fr, ok := parseRecord(line)
		in.Next(idx + 1)
		if !ok {
			continue
		}
		out(fr)
		metrics.IncSlcanRx()
	}
}

// parseRecord decodes one record body (terminator stripped). Status replies
// yield ok=false without being malformed; garbage is counted.
func parseRecord(line []byte) (can.Frame, bool) {
	if len(line) == 0 {
		return can.Frame{}, false // bare CR = OK reply
	}
	var idLen int
	var flags uint32
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
		flags = can.CAN_EFF_FLAG
	case 'r':
		idLen = 3
		flags = can.CAN_RTR_FLAG
	case 'R':
		idLen = 8
		flags = can.CAN_EFF_FLAG | can.CAN_RTR_FLAG
	case 'z', 'Z', 'F', 'v', 'V', 'N':
		return can.Frame{}, false // command replies / status
	default:
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	if len(line) < 1+idLen+1 {
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	dlc := int(line[1+idLen] - '0')
	if dlc < 0 || dlc > can.MaxDLC {
		metrics.IncMalformed()
		return can.Frame{}, false
	}

	var f can.Frame
	f.EchoID = can.NoEchoID
	f.CANID = uint32(id)&can.CAN_EFF_MASK | flags
	f.DLC = uint8(dlc)
	if flags&can.CAN_RTR_FLAG == 0 {
		body := line[1+idLen+1:]
		if len(body) < dlc*2 {
			metrics.IncMalformed()
			return can.Frame{}, false
		}
		for i := 0; i < dlc; i++ {
			b, err := strconv.ParseUint(string(body[i*2:i*2+2]), 16, 8)
			if err != nil {
				metrics.IncMalformed()
				return can.Frame{}, false
			}
			f.Data[i] = byte(b)
		}
	}
	return f, true
}
