package slcan

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}

// speedCodes maps supported CAN bitrates to the slcan 'S' setup digit.
var speedCodes = map[uint32]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// SetupCommands returns the byte sequences that configure the bitrate and
// open the channel. ok=false when the adapter has no speed code for the rate.
func SetupCommands(bitrate uint32) ([][]byte, bool) {
	code, ok := speedCodes[bitrate]
	if !ok {
		return nil, false
	}
	return [][]byte{
		{'C', '\r'}, // close first in case the channel was left open
		{'S', code, '\r'},
		{'O', '\r'},
	}, true
}

// CloseCommand returns the channel-close record.
func CloseCommand() []byte { return []byte{'C', '\r'} }
