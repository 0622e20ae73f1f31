package can

import (
	"strings"
	"testing"
)

func errFrame(canID uint32, flags uint8, data [8]byte) Frame {
	return Frame{CANID: canID | CAN_ERR_FLAG, Flags: flags, Data: data, DLC: 8}
}

func TestDecodeError_BusOffStuffBitDominant(t *testing.T) {
	f := errFrame(0x40, 0, [8]byte{0, 0, 0x04 | 0x08, 0x08, 0, 0, 5, 2})
	r := DecodeError(f)
	for _, want := range []uint32{ERR_BUSOFF, ERR_STUFF, ERR_BIT_DOMINANT, ERR_CRC} {
		if !r.Has(want) {
			t.Fatalf("missing flag 0x%X in 0x%X", want, r.Flags)
		}
	}
	if r.Has(ERR_ACK) || r.Has(ERR_OVERLOAD) {
		t.Fatalf("unexpected flags set: 0x%X", r.Flags)
	}
	if r.TxErrors != 5 || r.RxErrors != 2 {
		t.Fatalf("counters tx=%d rx=%d want 5/2", r.TxErrors, r.RxErrors)
	}
}

func TestDecodeError_WarningWinsOverPassive(t *testing.T) {
	// Both status bits set: warning must win (else-if precedence).
	f := errFrame(0, 0, [8]byte{0, 0x04 | 0x10})
	r := DecodeError(f)
	if !r.Has(ERR_RX_TX_WARNING) {
		t.Fatalf("expected warning flag")
	}
	if r.Has(ERR_RX_TX_PASSIVE) {
		t.Fatalf("passive must not be set when warning bit present")
	}
}

func TestDecodeError_PassiveAlone(t *testing.T) {
	f := errFrame(0, 0, [8]byte{0, 0x10})
	r := DecodeError(f)
	if !r.Has(ERR_RX_TX_PASSIVE) || r.Has(ERR_RX_TX_WARNING) {
		t.Fatalf("expected passive only, got 0x%X", r.Flags)
	}
}

func TestDecodeError_AllIndependentBits(t *testing.T) {
	f := errFrame(0x40|0x20, 0x01, [8]byte{0, 0, 0x04 | 0x02 | 0x10 | 0x08, 0x08, 0, 0, 0xFF, 0xFE})
	r := DecodeError(f)
	want := uint32(ERR_BUSOFF | ERR_ACK | ERR_OVERLOAD | ERR_STUFF | ERR_FORM |
		ERR_BIT_RECESSIVE | ERR_BIT_DOMINANT | ERR_CRC)
	if r.Flags != want {
		t.Fatalf("flags 0x%X want 0x%X", r.Flags, want)
	}
	if r.TxErrors != 0xFF || r.RxErrors != 0xFE {
		t.Fatalf("counters tx=%d rx=%d", r.TxErrors, r.RxErrors)
	}
}

func TestDecodeError_CleanFrame(t *testing.T) {
	r := DecodeError(errFrame(0, 0, [8]byte{}))
	if r.Flags != 0 || r.TxErrors != 0 || r.RxErrors != 0 {
		t.Fatalf("expected empty report, got %+v", r)
	}
	if got := r.String(); !strings.HasPrefix(got, "none") {
		t.Fatalf("String=%q", got)
	}
}

func TestErrorReport_String(t *testing.T) {
	r := ErrorReport{Flags: ERR_BUSOFF | ERR_CRC, TxErrors: 9, RxErrors: 1}
	s := r.String()
	for _, sub := range []string{"bus-off", "crc", "tx=9", "rx=1"} {
		if !strings.Contains(s, sub) {
			t.Fatalf("String %q missing %q", s, sub)
		}
	}
}
