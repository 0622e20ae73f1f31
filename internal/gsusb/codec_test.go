package gsusb

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/kstaniek/go-gsusb-server/internal/can"
)

func mkFrame(id uint32, n int) can.Frame {
	var f can.Frame
	f.EchoID = can.NoEchoID
	f.CANID = (id & can.CAN_EFF_MASK) | can.CAN_EFF_FLAG
	if n < 0 {
		n = 0
	}
	if n > 8 {
		n = 8
	}
	f.DLC = uint8(n)
	rand.Read(f.Data[:n])
	f.TimestampUS = 0xDEAD0000 | id&0xFFFF
	return f
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := Codec{}
	for dlc := 0; dlc <= 8; dlc++ {
		in := mkFrame(uint32(0x100+dlc), dlc)
		in.Channel = uint8(dlc % 3)
		in.Flags = uint8(dlc)
		out, err := codec.Unmarshal(codec.Marshal(in))
		if err != nil {
			t.Fatalf("dlc=%d: %v", dlc, err)
		}
		if out != in {
			t.Fatalf("dlc=%d round trip mismatch:\nin=%+v\nout=%+v", dlc, in, out)
		}
	}
}

func TestCodec_GoldenLayout(t *testing.T) {
	f := can.Frame{
		EchoID:      0x04030201,
		CANID:       0x123 | can.CAN_EFF_FLAG,
		DLC:         2,
		Channel:     1,
		Flags:       0x01,
		Reserved:    0,
		Data:        [8]byte{0xAA, 0xBB},
		TimestampUS: 0x0D0C0B0A,
	}
	want := []byte{
		0x01, 0x02, 0x03, 0x04, // echo_id LE
		0x23, 0x01, 0x00, 0x80, // can_id LE with EFF flag
		0x02, 0x01, 0x01, 0x00, // dlc, channel, flags, reserved
		0xAA, 0xBB, 0, 0, 0, 0, 0, 0, // data
		0x0A, 0x0B, 0x0C, 0x0D, // timestamp_us LE
	}
	got := Codec{}.Marshal(f)
	if !bytes.Equal(got, want) {
		t.Fatalf("layout mismatch\ngot  % X\nwant % X", got, want)
	}
}

func TestCodec_UnmarshalBadLength(t *testing.T) {
	codec := Codec{}
	for _, n := range []int{0, 1, 23, 25, 48} {
		if _, err := codec.Unmarshal(make([]byte, n)); !errors.Is(err, ErrBadLength) {
			t.Fatalf("len=%d: err=%v want ErrBadLength", n, err)
		}
	}
	if _, err := codec.Unmarshal(nil); !errors.Is(err, ErrBadLength) {
		t.Fatalf("nil input: err=%v want ErrBadLength", err)
	}
}

func TestCodec_StreamRoundTrip(t *testing.T) {
	codec := Codec{}
	in := []can.Frame{mkFrame(0x1E5A, 8), mkFrame(0x1F55, 6), mkFrame(0x12345, 0)}
	wire := codec.Encode(in)
	if len(wire) != len(in)*FrameSize {
		t.Fatalf("wire len %d want %d", len(wire), len(in)*FrameSize)
	}
	var out []can.Frame
	n, err := codec.DecodeN(bytes.NewReader(wire), 0, func(f can.Frame) { out = append(out, f) })
	if err != io.EOF {
		t.Fatalf("DecodeN err=%v want io.EOF at clean end", err)
	}
	if n != len(in) || len(out) != len(in) {
		t.Fatalf("decoded %d/%d, want %d", n, len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("frame %d mismatch", i)
		}
	}
}

func TestCodec_DecodeTruncated(t *testing.T) {
	codec := Codec{}
	wire := codec.Marshal(mkFrame(0x77, 4))
	if _, err := codec.Decode(bytes.NewReader(wire[:10])); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v want ErrUnexpectedEOF", err)
	}
}

func TestCodec_EncodeToMatchesEncode(t *testing.T) {
	codec := Codec{}
	frames := []can.Frame{mkFrame(0x10, 8), mkFrame(0x11, 3)}
	a := codec.Encode(frames)
	var buf bytes.Buffer
	if _, err := codec.EncodeTo(&buf, frames); err != nil {
		t.Fatalf("EncodeTo error: %v", err)
	}
	if !bytes.Equal(a, buf.Bytes()) {
		t.Fatalf("Encode vs EncodeTo mismatch\nenc=% X\nencTo=% X", a, buf.Bytes())
	}
}

func BenchmarkCodec_Marshal(b *testing.B) {
	codec := Codec{}
	f := mkFrame(0x123, 8)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = codec.Marshal(f)
	}
}

func BenchmarkCodec_DecodeN(b *testing.B) {
	codec := Codec{}
	frames := make([]can.Frame, 64)
	for i := range frames {
		frames[i] = mkFrame(uint32(0x300+i), 8)
	}
	wire := codec.Encode(frames)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = codec.DecodeN(bytes.NewReader(wire), 0, func(can.Frame) {})
	}
}
