package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-gsusb-server/internal/can"
	"github.com/kstaniek/go-gsusb-server/internal/gsusb"
	"github.com/kstaniek/go-gsusb-server/internal/hub"
	"github.com/kstaniek/go-gsusb-server/internal/metrics"
	"github.com/kstaniek/go-gsusb-server/internal/slcan"
	"github.com/kstaniek/go-gsusb-server/internal/socketcan"
	"github.com/kstaniek/go-gsusb-server/internal/transport"
	"github.com/kstaniek/go-gsusb-server/internal/usb"
)

// startReader spawns the per-connection reader goroutine. It decodes 24-byte
// frame records off the TCP stream and forwards them to the backend device.
func (s *Server) startReader(done <-chan struct{}, conn net.Conn, client *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.disconnect(conn, client, logger)

		br := bufio.NewReaderSize(conn, 4096)
		multi, hasMulti := s.Codec.(transport.MultiFrameDecoder)
		for {
			select {
			case <-done:
				return
			case <-client.Closed:
				return
			default:
			}
			if s.readDeadline > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			}
			// Block for one frame, then drain whatever whole records are
			// already buffered. Draining only buffered bytes keeps the read
			// deadline refreshing per wakeup instead of per batch.
			fr, err := s.Codec.Decode(br)
			if err != nil {
				s.readerFailed(err, logger)
				return
			}
			s.handleClientFrame(fr, logger)
			if !hasMulti {
				continue
			}
			if extra := br.Buffered() / gsusb.FrameSize; extra > 0 {
				if extra > s.batchSize {
					extra = s.batchSize
				}
				if _, err := multi.DecodeN(br, extra, func(fr can.Frame) {
					s.handleClientFrame(fr, logger)
				}); err != nil {
					s.readerFailed(err, logger)
					return
				}
			}
		}
	}()
}

// readerFailed classifies and records the error that ended the connection.
func (s *Server) readerFailed(err error, logger *slog.Logger) {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		logger.Info("client_idle_timeout", "deadline", s.readDeadline)
		return
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		logger.Info("client_eof")
		return
	}
	wrap := fmt.Errorf("%w: %v", ErrRead, err)
	metrics.IncError(mapErrToMetric(wrap))
	s.setError(wrap)
	logger.Warn("client_read_error", "error", err)
}

// handleClientFrame forwards one decoded frame to the backend. Backend
// overflow is expected under burst load and only counted; other backend
// errors are logged.
func (s *Server) handleClientFrame(fr can.Frame, logger *slog.Logger) {
	metrics.IncTCPRx()
	if s.frameFilter != nil && !s.frameFilter(&fr) {
		return
	}
	if s.Send == nil {
		return
	}
	if err := s.Send(fr); err != nil {
		if errors.Is(err, usb.ErrTxOverflow) || errors.Is(err, slcan.ErrTxOverflow) || errors.Is(err, socketcan.ErrTxOverflow) {
			s.totalBackendOverflow.Add(1)
			logger.Debug("backend_tx_overflow", "can_id", fr.ArbitrationID())
			return
		}
		s.totalBackendErrors.Add(1)
		logger.Warn("backend_send_error", "error", err)
	}
}

// disconnect tears down one client connection (idempotent per connection).
func (s *Server) disconnect(conn net.Conn, client *hub.Client, logger *slog.Logger) {
	client.Close()
	_ = conn.Close()
	s.clientsMu.Lock()
	_, present := s.clients[client]
	delete(s.clients, client)
	s.clientsMu.Unlock()
	if !present {
		return
	}
	if s.Hub != nil {
		s.Hub.Remove(client)
	}
	s.totalDisconnected.Add(1)
	logger.Info("client_disconnected")
}
