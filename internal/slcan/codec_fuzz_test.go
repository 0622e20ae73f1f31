package slcan

import (
	"bytes"
	"testing"

	"github.com/kstaniek/go-gsusb-server/internal/can"
)

// FuzzDecodeStream ensures the ASCII record parser never panics on arbitrary
// serial noise and that well-formed records embedded in noise still decode.
func FuzzDecodeStream(f *testing.F) {
	c := Codec{}
	f.Add([]byte("t1232AABB\r"))
	f.Add([]byte("T00001234180\r"))
	f.Add([]byte("r0104\r\az\r"))
	f.Add([]byte("garbage\rt"))
	f.Fuzz(func(t *testing.T, data []byte) {
		in := bytes.NewBuffer(data)
		_ = c.DecodeStream(in, func(can.Frame) {})
	})
}
