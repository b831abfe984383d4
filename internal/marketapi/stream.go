package marketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nftflow/internal/events"
	"nftflow/logger"
)

const (
	// DefaultStreamURL is the marketplace push endpoint.
	DefaultStreamURL = "wss://stream.openseabeta.com/socket/websocket"

	// WildcardTopic subscribes across every collection.
	WildcardTopic = "*"

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// StreamHandler receives a normalized payload for one push event.
type StreamHandler func(eventType string, payload events.StreamPayload)

type registration struct {
	topic      string
	eventTypes map[events.EventType]struct{}
	handler    StreamHandler
}

// StreamClient is the websocket transport for marketplace push events. It
// dials, keeps the connection alive with heartbeats and fans incoming frames
// out to registered handlers. It does NOT reconnect on its own: a read or
// ping failure tears the connection down and is reported through the error
// callback, leaving the retry policy to the caller.
type StreamClient struct {
	streamURL string
	apiKey    string
	log       *logger.Log

	mu            sync.Mutex
	conn          *websocket.Conn
	connected     bool
	registrations []registration
	errHandler    func(error)
	done          chan struct{}
}

// NewStreamClient creates a push transport for the given endpoint. The API
// key is carried as a query parameter, matching the upstream protocol.
func NewStreamClient(streamURL, apiKey string) (*StreamClient, error) {
	streamURL = strings.TrimSpace(streamURL)
	if streamURL == "" {
		streamURL = DefaultStreamURL
	}
	u, err := url.Parse(streamURL)
	if err != nil {
		return nil, fmt.Errorf("stream url parse %q: %w", streamURL, err)
	}
	if u.Scheme != "wss" && u.Scheme != "ws" {
		return nil, fmt.Errorf("stream url must be ws(s), got %q", streamURL)
	}

	return &StreamClient{
		streamURL: streamURL,
		apiKey:    apiKey,
		log:       logger.GetLogger(),
	}, nil
}

// OnError registers the callback invoked when the transport drops. At most
// one callback is kept; a nil value clears it.
func (s *StreamClient) OnError(fn func(error)) {
	s.mu.Lock()
	s.errHandler = fn
	s.mu.Unlock()
}

// Connect dials the push endpoint and starts the read and heartbeat loops.
// Existing subscriptions are replayed on the fresh connection so handlers
// registered before a reconnect keep receiving events.
func (s *StreamClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	log := s.log.WithComponent("stream_client")

	dialURL := s.streamURL
	if s.apiKey != "" {
		sep := "?"
		if strings.Contains(dialURL, "?") {
			sep = "&"
		}
		dialURL = dialURL + sep + "token=" + url.QueryEscape(s.apiKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	header := http.Header{}
	header.Set("User-Agent", DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, dialURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect websocket: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.done = make(chan struct{})
	pending := make([]registration, len(s.registrations))
	copy(pending, s.registrations)
	done := s.done
	s.mu.Unlock()

	go s.pingLoop(conn, done)
	go s.readLoop(conn, done)

	for _, reg := range pending {
		if err := s.sendSubscribe(reg.topic); err != nil {
			log.WithError(err).WithFields(logger.Fields{"topic": reg.topic}).Warn("failed to resubscribe topic")
		}
	}

	log.WithFields(logger.Fields{"url": s.streamURL, "topics": len(pending)}).Info("stream transport connected")
	return nil
}

// Connected reports whether the transport currently holds a live connection.
func (s *StreamClient) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OnEvents registers a handler for push events on a collection topic. The
// handler only sees events whose type is in eventTypes. A subscribe frame is
// sent for topics not already subscribed on the live connection.
func (s *StreamClient) OnEvents(topic string, eventTypes []events.EventType, handler StreamHandler) error {
	types := make(map[events.EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return fmt.Errorf("stream transport not connected")
	}
	needsFrame := true
	for _, reg := range s.registrations {
		if reg.topic == topic {
			needsFrame = false
			break
		}
	}
	s.registrations = append(s.registrations, registration{topic: topic, eventTypes: types, handler: handler})
	s.mu.Unlock()

	if needsFrame {
		if err := s.sendSubscribe(topic); err != nil {
			return err
		}
	}
	return nil
}

// ClearHandlers drops every registered handler without closing the socket.
func (s *StreamClient) ClearHandlers() {
	s.mu.Lock()
	s.registrations = nil
	s.mu.Unlock()
}

// Close tears down the connection. Registered handlers are kept so a later
// Connect can resubscribe them.
func (s *StreamClient) Close() {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	s.conn = nil
	s.connected = false
	s.done = nil
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		conn.Close()
	}
}

// phoenix-style frame shared by both directions.
type streamFrame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

func (s *StreamClient) sendSubscribe(topic string) error {
	frame := streamFrame{
		Topic:   topicChannel(topic),
		Event:   "phx_join",
		Payload: json.RawMessage("{}"),
		Ref:     uuid.NewString(),
	}
	return s.writeFrame(frame)
}

func (s *StreamClient) writeFrame(frame streamFrame) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream transport not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(frame)
}

func topicChannel(topic string) string {
	return "collection:" + topic
}

func channelTopic(channel string) string {
	return strings.TrimPrefix(channel, "collection:")
}

func (s *StreamClient) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			frame := streamFrame{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage("{}"), Ref: uuid.NewString()}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

func (s *StreamClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	log := s.log.WithComponent("stream_client")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// whoever clears s.conn owns closing done; a racing Close
			// takes it first and this branch stays quiet.
			s.mu.Lock()
			wasLive := s.conn == conn
			if wasLive {
				s.conn = nil
				s.connected = false
				s.done = nil
			}
			errHandler := s.errHandler
			s.mu.Unlock()

			conn.Close()
			if wasLive {
				close(done)
				log.WithError(err).Warn("websocket read error")
				if errHandler != nil {
					errHandler(err)
				}
			}
			return
		}
		s.handleFrame(msg)
	}
}

func (s *StreamClient) handleFrame(msg []byte) {
	var frame streamFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		s.log.WithComponent("stream_client").WithError(err).Debug("failed to decode frame")
		return
	}
	switch frame.Event {
	case "phx_reply", "phx_close", "phx_error", "heartbeat":
		return
	}

	var payload events.StreamPayload
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			s.log.WithComponent("stream_client").WithError(err).Debug("failed to decode event payload")
			return
		}
	}
	topic := channelTopic(frame.Topic)

	s.mu.Lock()
	matched := make([]StreamHandler, 0, 2)
	for _, reg := range s.registrations {
		if reg.topic != topic && reg.topic != WildcardTopic {
			continue
		}
		if len(reg.eventTypes) > 0 {
			if _, ok := reg.eventTypes[events.EventType(frame.Event)]; !ok {
				continue
			}
		}
		matched = append(matched, reg.handler)
	}
	s.mu.Unlock()

	for _, h := range matched {
		s.invoke(h, frame.Event, payload)
	}
}

// invoke shields the read loop from handler panics.
func (s *StreamClient) invoke(h StreamHandler, eventType string, payload events.StreamPayload) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithComponent("stream_client").WithFields(logger.Fields{
				"event_type": eventType,
				"panic":      fmt.Sprintf("%v", r),
			}).Error("event handler panicked")
		}
	}()
	h(eventType, payload)
}
