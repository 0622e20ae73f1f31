package server

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-gsusb-server/internal/can"
	"github.com/kstaniek/go-gsusb-server/internal/gsusb"
	"github.com/kstaniek/go-gsusb-server/internal/hub"
	"github.com/kstaniek/go-gsusb-server/internal/metrics"
	"github.com/kstaniek/go-gsusb-server/internal/transport"
)

// startWriter spawns the per-connection writer goroutine. Frames queued on the
// client's hub channel are encoded in batches and flushed either when the
// batch fills or the flush ticker fires, whichever comes first.
func (s *Server) startWriter(done <-chan struct{}, conn net.Conn, client *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.disconnect(conn, client, logger)

		enc, hasEnc := s.Codec.(transport.FrameBatchEncoder)
		bw := bufio.NewWriterSize(conn, 8192)
		batch := make([]can.Frame, 0, s.batchSize)
		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()

		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			var err error
			if hasEnc {
				_, err = enc.EncodeTo(bw, batch)
			} else {
				var codec gsusb.Codec
				for i := range batch {
					if _, err = bw.Write(codec.Marshal(batch[i])); err != nil {
						break
					}
				}
			}
			if err == nil {
				err = bw.Flush()
			}
			if err != nil {
				wrap := fmt.Errorf("%w: %v", ErrWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				logger.Warn("client_write_error", "error", err)
				return false
			}
			metrics.AddTCPTx(len(batch))
			batch = batch[:0]
			return true
		}

		for {
			select {
			case <-done:
				_ = flush()
				return
			case <-client.Closed:
				_ = flush()
				return
			case fr, ok := <-client.Out:
				if !ok {
					_ = flush()
					return
				}
				batch = append(batch, fr)
				if len(batch) >= s.batchSize {
					if !flush() {
						return
					}
				}
			case <-ticker.C:
				if !flush() {
					return
				}
			}
		}
	}()
}
