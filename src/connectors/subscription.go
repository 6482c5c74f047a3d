package connectors

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// TickSubscriber asks the market data relay to start streaming quotes for an
// instrument. Placement subscribes every newly traded instrument so live
// prices begin flowing immediately.
type TickSubscriber struct {
	url string

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed map[string]bool
}

type subscribeMessage struct {
	Action string `json:"action"`
	Token  string `json:"token"`
}

// NewTickSubscriber creates a subscriber for the configured relay URL. The
// connection is dialed lazily on first subscribe.
func NewTickSubscriber(url string) *TickSubscriber {
	return &TickSubscriber{
		url:        url,
		subscribed: make(map[string]bool),
	}
}

// NewTickSubscriberFromConfig creates a subscriber from environment configuration.
func NewTickSubscriberFromConfig() *TickSubscriber {
	return NewTickSubscriber(GetConfig().FeedWSURL)
}

func (s *TickSubscriber) ensureConn() error {
	if s.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(s.url, nil)
	if err != nil {
		return err
	}

	s.conn = conn
	logger.WithField("url", s.url).Info("Tick relay connected")
	return nil
}

// Subscribe requests a live quote stream for the instrument token.
// Duplicate subscriptions within one connection are suppressed.
func (s *TickSubscriber) Subscribe(instrumentToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribed[instrumentToken] {
		return nil
	}

	if err := s.ensureConn(); err != nil {
		logger.WithFields(map[string]interface{}{
			"connector": "TickSubscriber",
			"token":     instrumentToken,
		}).WithError(err).Error("Failed to connect to tick relay")

		return err
	}

	msg, err := json.Marshal(subscribeMessage{Action: "subscribe", Token: instrumentToken})
	if err != nil {
		return err
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		// Drop the connection so the next subscribe redials.
		_ = s.conn.Close()
		s.conn = nil
		s.subscribed = make(map[string]bool)

		logger.WithFields(map[string]interface{}{
			"connector": "TickSubscriber",
			"token":     instrumentToken,
		}).WithError(err).Error("Failed to send subscribe message")

		return err
	}

	s.subscribed[instrumentToken] = true

	logger.WithFields(map[string]interface{}{
		"connector": "TickSubscriber",
		"token":     instrumentToken,
	}).Info("Instrument subscribed for live quotes")

	return nil
}

// Close shuts the relay connection down.
func (s *TickSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.subscribed = make(map[string]bool)
	return err
}
