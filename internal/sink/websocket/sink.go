// Package websocket streams packets and statistics to browser clients.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"firestige.xyz/tanalyzer/internal/core"
	"firestige.xyz/tanalyzer/internal/log"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 512
)

// Message is the envelope written to clients.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PacketView is the JSON form of a DecodedPacket.
type PacketView struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Length    int       `json:"length"`
	Type      string    `json:"type,omitempty"`
	Src       string    `json:"src,omitempty"`
	Dst       string    `json:"dst,omitempty"`
	Transport string    `json:"transport,omitempty"`
	SrcPort   uint16    `json:"src_port,omitempty"`
	DstPort   uint16    `json:"dst_port,omitempty"`
}

func NewPacketView(p core.DecodedPacket) PacketView {
	v := PacketView{
		Seq:       p.Seq,
		Timestamp: p.Timestamp,
		Length:    p.Length,
		Type:      p.Type(),
	}
	if p.SrcIP.IsValid() {
		v.Src = p.SrcIP.String()
	}
	if p.DstIP.IsValid() {
		v.Dst = p.DstIP.String()
	}
	if p.Ports != nil {
		v.Transport = p.Ports.Transport.String()
		v.SrcPort = p.Ports.Src
		v.DstPort = p.Ports.Dst
	}
	return v
}

type client struct {
	conn   *websocket.Conn
	sendCh chan Message
	done   chan struct{}
}

// Sink broadcasts to every connected client. A slow client loses packet
// messages instead of slowing the worker down.
type Sink struct {
	upgrader websocket.Upgrader
	logger   log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	server *http.Server
}

func NewSink() *Sink {
	return &Sink{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  log.GetLogger().WithField("component", "websocket"),
		clients: make(map[*client]struct{}),
	}
}

func (s *Sink) Publish(pkt core.DecodedPacket) {
	s.broadcast("packet", NewPacketView(pkt))
}

func (s *Sink) PublishStatistics(stats core.CaptureStatistics) {
	s.broadcast("statistics", stats)
}

// Clients returns the number of connected clients.
func (s *Sink) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Sink) broadcast(kind string, v any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.clients) == 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.WithError(err).Error("marshal websocket message")
		return
	}
	msg := Message{Type: kind, Payload: payload}
	for c := range s.clients {
		c.send(msg)
	}
}

// send never blocks. When the buffer is full packets are dropped, while
// other messages evict the oldest queued one.
func (c *client) send(msg Message) {
	select {
	case c.sendCh <- msg:
		return
	default:
	}
	if msg.Type == "packet" {
		return
	}
	select {
	case <-c.sendCh:
	default:
	}
	select {
	case c.sendCh <- msg:
	default:
	}
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ServeHTTP upgrades the request and keeps the client registered until
// it disconnects.
func (s *Sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{
		conn:   conn,
		sendCh: make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.WithField("remote", r.RemoteAddr).Info("websocket client connected")

	go c.writeLoop()

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	close(c.done)
	s.logger.WithField("remote", r.RemoteAddr).Info("websocket client disconnected")
}

// Start serves the websocket endpoint on listen at path in the background.
func (s *Sink) Start(listen, path string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("websocket listen %s: %w", listen, err)
	}
	mux := http.NewServeMux()
	mux.Handle(path, s)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.logger.Infof("websocket sink listening on %s%s", ln.Addr(), path)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("websocket server error")
		}
	}()
	return nil
}

func (s *Sink) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
