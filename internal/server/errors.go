package server

import (
	"errors"

	"github.com/kstaniek/go-gsusb-server/internal/metrics"
)

// Sentinel errors for stable classification at call sites and in tests.
var (
	ErrListen  = errors.New("tcp listen failed")
	ErrAccept  = errors.New("tcp accept failed")
	ErrRead    = errors.New("tcp read failed")
	ErrWrite   = errors.New("tcp write failed")
	ErrDecode  = errors.New("frame decode failed")
	ErrContext = errors.New("context terminated")
)

// mapErrToMetric maps a wrapped sentinel error to the metrics label used for
// the errors_total counter.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrRead), errors.Is(err, ErrDecode), errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrWrite):
		return metrics.ErrTCPWrite
	default:
		return metrics.ErrTCPRead
	}
}
