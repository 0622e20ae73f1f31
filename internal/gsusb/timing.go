package gsusb

import (
	"errors"
	"fmt"
	"sort"
)

// BitTiming holds the five quantum-timing registers pushed to the device.
// Base clock is 48 MHz; prop_seg is fixed at 1 in this design.
type BitTiming struct {
	PropSeg   uint32
	PhaseSeg1 uint32 // 1..15
	PhaseSeg2 uint32 // 1..8
	SJW       uint32 // 1..4
	BRP       uint32 // 1..1024
}

// ErrUnsupportedBitrate is returned for bitrates outside the vetted table.
var ErrUnsupportedBitrate = errors.New("gsusb: unsupported bitrate")

// timingTable maps standard bitrates to hand-verified register values for an
// 87.5% sample point at 48 MHz. Values come from the CandleApi driver; they
// are a fixed policy table, never derived arithmetically, because rounding
// choices are adapter-specific.
var timingTable = map[uint32]BitTiming{
	10000:   {PropSeg: 1, PhaseSeg1: 12, PhaseSeg2: 2, SJW: 1, BRP: 300},
	20000:   {PropSeg: 1, PhaseSeg1: 12, PhaseSeg2: 2, SJW: 1, BRP: 150},
	50000:   {PropSeg: 1, PhaseSeg1: 12, PhaseSeg2: 2, SJW: 1, BRP: 60},
	83333:   {PropSeg: 1, PhaseSeg1: 12, PhaseSeg2: 2, SJW: 1, BRP: 36},
	100000:  {PropSeg: 1, PhaseSeg1: 12, PhaseSeg2: 2, SJW: 1, BRP: 30},
	125000:  {PropSeg: 1, PhaseSeg1: 12, PhaseSeg2: 2, SJW: 1, BRP: 24},
	250000:  {PropSeg: 1, PhaseSeg1: 12, PhaseSeg2: 2, SJW: 1, BRP: 12},
	500000:  {PropSeg: 1, PhaseSeg1: 12, PhaseSeg2: 2, SJW: 1, BRP: 6},
	800000:  {PropSeg: 1, PhaseSeg1: 11, PhaseSeg2: 2, SJW: 1, BRP: 4},
	1000000: {PropSeg: 1, PhaseSeg1: 11, PhaseSeg2: 2, SJW: 1, BRP: 3},
}

// TimingForBitrate returns the register values for one of the supported
// standard bitrates. Unsupported rates are a reported failure; there is no
// fallback computation.
func TimingForBitrate(bitrate uint32) (BitTiming, error) {
	bt, ok := timingTable[bitrate]
	if !ok {
		return BitTiming{}, fmt.Errorf("%w: %d (supported: %v)", ErrUnsupportedBitrate, bitrate, SupportedBitrates())
	}
	return bt, nil
}

// SupportedBitrates lists the whitelisted bitrates in ascending order.
func SupportedBitrates() []uint32 {
	rates := make([]uint32, 0, len(timingTable))
	for r := range timingTable {
		rates = append(rates, r)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
	return rates
}
