package handler

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/config"
	"github.com/zxtrader/pricing-sub000/internal/dto"
	"github.com/zxtrader/pricing-sub000/internal/realtime"
	"github.com/zxtrader/pricing-sub000/internal/types"
)

const (
	streamSendBuffer = 64
	writeWait        = 10 * time.Second
)

// Stream serves GET /api/v1/stream and upgrades to a websocket delivering
// change-price or change-rate notifications.
func (h *Handler) Stream(c *gin.Context) {
	var req dto.StreamRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.respondError(c, types.NewArgumentError("invalid query: %v", err), nil)
		return
	}
	if err := req.Validate(h.wsConfig.MinThreshold); err != nil {
		h.respondError(c, err, nil)
		return
	}

	var (
		id      string
		dispose func()
		attach  func(s *streamSession)
	)
	switch req.Type {
	case dto.StreamTypePrice:
		pairs, err := req.ParsePairs()
		if err != nil {
			h.respondError(c, err, nil)
			return
		}
		sub, err := h.manager.SubscribeChangePrice(req.ThresholdDuration(), pairs, req.ParseExchanges())
		if err != nil {
			h.respondError(c, err, nil)
			return
		}
		id, dispose = sub.ID(), sub.Dispose
		attach = func(s *streamSession) {
			sub.Attach(func(snapshot realtime.PriceSnapshot) {
				s.enqueue(dto.StreamMessage{Type: dto.StreamTypePrice, ID: id, Data: snapshot})
			})
		}
	case dto.StreamTypeRate:
		sub, err := h.manager.SubscribeChangeRate(req.ThresholdDuration(), strings.ToUpper(req.Market), strings.ToUpper(req.Trade))
		if err != nil {
			h.respondError(c, err, nil)
			return
		}
		id, dispose = sub.ID(), sub.Dispose
		attach = func(s *streamSession) {
			sub.Attach(func(ev realtime.RateEvent) {
				s.enqueue(dto.StreamMessage{Type: dto.StreamTypeRate, ID: id, Data: ev})
			})
		}
	}
	defer dispose()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"subscription_id": id,
		"type":            req.Type,
	})
	logger.Info("Stream opened")

	session := newStreamSession(conn, h.wsConfig, logger)
	session.enqueue(dto.StreamMessage{Type: "subscribed", ID: id})
	attach(session)
	session.run()

	logger.Info("Stream closed")
}

// streamSession owns one websocket. Only the write pump writes to the connection.
type streamSession struct {
	conn   *websocket.Conn
	config config.WebSocketConfig
	logger logrus.FieldLogger
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newStreamSession(conn *websocket.Conn, cfg config.WebSocketConfig, logger logrus.FieldLogger) *streamSession {
	return &streamSession{
		conn:   conn,
		config: cfg,
		logger: logger,
		send:   make(chan []byte, streamSendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue queues msg for the writer. Messages are dropped while the buffer is full.
func (s *streamSession) enqueue(msg dto.StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode stream message")
		return
	}

	select {
	case <-s.done:
	case s.send <- data:
	default:
		s.logger.WithField("type", msg.Type).Warn("Stream buffer full, dropping message")
	}
}

// run blocks until the peer goes away.
func (s *streamSession) run() {
	go s.writePump()
	s.readPump()
	s.close()
}

func (s *streamSession) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *streamSession) readPump() {
	s.conn.SetReadLimit(s.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).Debug("Stream read failed")
			}
			return
		}
	}
}

func (s *streamSession) writePump() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}
