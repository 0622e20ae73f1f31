package can

import (
	"fmt"
	"strings"
)

// Bus error classes reported by gs_usb error frames.
const (
	ERR_BUSOFF        = 0x00000001
	ERR_RX_TX_WARNING = 0x00000002
	ERR_RX_TX_PASSIVE = 0x00000004
	ERR_OVERLOAD      = 0x00000008
	ERR_STUFF         = 0x00000010
	ERR_FORM          = 0x00000020
	ERR_ACK           = 0x00000040
	ERR_BIT_RECESSIVE = 0x00000080
	ERR_BIT_DOMINANT  = 0x00000100
	ERR_CRC           = 0x00000200
)

// ErrorReport is the structured view of a bus-error frame.
type ErrorReport struct {
	Flags    uint32
	TxErrors uint8
	RxErrors uint8
}

// Has reports whether a given ERR_* class is present.
func (r ErrorReport) Has(flag uint32) bool { return r.Flags&flag != 0 }

var errNames = []struct {
	flag uint32
	name string
}{
	{ERR_BUSOFF, "bus-off"},
	{ERR_RX_TX_WARNING, "warning"},
	{ERR_RX_TX_PASSIVE, "passive"},
	{ERR_OVERLOAD, "overload"},
	{ERR_STUFF, "stuff"},
	{ERR_FORM, "form"},
	{ERR_ACK, "ack"},
	{ERR_BIT_RECESSIVE, "bit-recessive"},
	{ERR_BIT_DOMINANT, "bit-dominant"},
	{ERR_CRC, "crc"},
}

func (r ErrorReport) String() string {
	var names []string
	for _, e := range errNames {
		if r.Flags&e.flag != 0 {
			names = append(names, e.name)
		}
	}
	if names == nil {
		names = []string{"none"}
	}
	return fmt.Sprintf("%s tx=%d rx=%d", strings.Join(names, "|"), r.TxErrors, r.RxErrors)
}

// DecodeError interprets a bus-error frame into an ErrorReport. The result is
// only meaningful when f.IsError() is true; callers must check first.
//
// The hardware never reports warning and passive together in practice; the
// else-if keeps warning taking precedence if both bits ever show up, matching
// the candleLight firmware's own parser.
func DecodeError(f Frame) ErrorReport {
	var r ErrorReport

	if f.CANID&0x40 != 0 {
		r.Flags |= ERR_BUSOFF
	}

	if f.Data[1]&0x04 != 0 {
		r.Flags |= ERR_RX_TX_WARNING
	} else if f.Data[1]&0x10 != 0 {
		r.Flags |= ERR_RX_TX_PASSIVE
	}

	if f.Flags&0x01 != 0 {
		r.Flags |= ERR_OVERLOAD
	}
	if f.Data[2]&0x04 != 0 {
		r.Flags |= ERR_STUFF
	}
	if f.Data[2]&0x02 != 0 {
		r.Flags |= ERR_FORM
	}
	if f.CANID&0x20 != 0 {
		r.Flags |= ERR_ACK
	}
	if f.Data[2]&0x10 != 0 {
		r.Flags |= ERR_BIT_RECESSIVE
	}
	if f.Data[2]&0x08 != 0 {
		r.Flags |= ERR_BIT_DOMINANT
	}
	if f.Data[3]&0x08 != 0 {
		r.Flags |= ERR_CRC
	}

	r.TxErrors = f.Data[6]
	r.RxErrors = f.Data[7]
	return r
}
