package gsusb

import (
	"errors"
	"testing"
)

func TestTimingForBitrate_Table(t *testing.T) {
	tests := []struct {
		bitrate    uint32
		seg1, seg2 uint32
		brp        uint32
	}{
		{10000, 12, 2, 300},
		{20000, 12, 2, 150},
		{50000, 12, 2, 60},
		{83333, 12, 2, 36},
		{100000, 12, 2, 30},
		{125000, 12, 2, 24},
		{250000, 12, 2, 12},
		{500000, 12, 2, 6},
		{800000, 11, 2, 4},
		{1000000, 11, 2, 3},
	}
	for _, tc := range tests {
		bt, err := TimingForBitrate(tc.bitrate)
		if err != nil {
			t.Fatalf("%d: %v", tc.bitrate, err)
		}
		if bt.PropSeg != 1 || bt.SJW != 1 {
			t.Fatalf("%d: prop_seg/sjw must be 1, got %+v", tc.bitrate, bt)
		}
		if bt.PhaseSeg1 != tc.seg1 || bt.PhaseSeg2 != tc.seg2 || bt.BRP != tc.brp {
			t.Fatalf("%d: got %+v want seg1=%d seg2=%d brp=%d", tc.bitrate, bt, tc.seg1, tc.seg2, tc.brp)
		}
	}
}

func TestTimingForBitrate_Unsupported(t *testing.T) {
	for _, r := range []uint32{0, 999, 33333, 499999, 2000000} {
		if _, err := TimingForBitrate(r); !errors.Is(err, ErrUnsupportedBitrate) {
			t.Fatalf("%d: err=%v want ErrUnsupportedBitrate", r, err)
		}
	}
}

func TestSupportedBitrates_SortedComplete(t *testing.T) {
	rates := SupportedBitrates()
	if len(rates) != 10 {
		t.Fatalf("expected 10 rates, got %d", len(rates))
	}
	for i := 1; i < len(rates); i++ {
		if rates[i-1] >= rates[i] {
			t.Fatalf("rates not ascending: %v", rates)
		}
	}
	if rates[0] != 10000 || rates[len(rates)-1] != 1000000 {
		t.Fatalf("unexpected bounds: %v", rates)
	}
}
