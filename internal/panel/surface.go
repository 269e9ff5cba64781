package panel

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/infrastructure/monitoring"
	"github.com/zyncapp/zync/host/internal/protocol"
)

// sendBuffer bounds envelopes queued toward a slow surface.
const sendBuffer = 32

// Surface is a panel's live websocket connection.
type Surface struct {
	panelID string
	conn    *websocket.Conn
	limiter *rate.Limiter
	log     *logging.Logger
	metrics *monitoring.Metrics

	out chan protocol.Envelope

	mu     sync.Mutex
	closed bool
}

func newSurface(panelID string, conn *websocket.Conn, limiter *rate.Limiter, log *logging.Logger, metrics *monitoring.Metrics) *Surface {
	return &Surface{
		panelID: panelID,
		conn:    conn,
		limiter: limiter,
		log:     log,
		metrics: metrics,
		out:     make(chan protocol.Envelope, sendBuffer),
	}
}

// Send queues an envelope for the surface. Returns false when the
// surface is closed or its queue is full.
func (s *Surface) Send(env protocol.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- env:
		return true
	default:
		s.log.Warn("surface send queue full, envelope dropped",
			zap.String("panel", s.panelID),
			zap.String("type", env.Type))
		return false
	}
}

// writeLoop serializes queued envelopes onto the connection.
func (s *Surface) writeLoop() {
	for env := range s.out {
		data, err := protocol.Encode(env)
		if err != nil {
			s.log.Error("surface encode failed",
				zap.String("panel", s.panelID),
				zap.Error(err))
			continue
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
		if s.metrics != nil {
			s.metrics.SurfaceMessages.WithLabelValues("out").Inc()
		}
	}
}

// Close shuts the surface down. Idempotent.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.out)
	s.mu.Unlock()

	s.conn.Close()
}

// limiter builds the per-surface rate limiter from config.
func (m *Manager) limiter() *rate.Limiter {
	if !m.cfg.Enabled {
		return nil
	}
	return rate.NewLimiter(rate.Limit(m.cfg.MessagesPerSecond), m.cfg.Burst)
}
