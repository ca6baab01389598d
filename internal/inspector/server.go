// Package inspector serves a live feed of decoded tlswire messages over a
// websocket, for tlsdump's --watch flag. It is a debugging convenience, not
// part of the core codec.
package inspector

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lanikai/tlswire/internal/logging"
	"github.com/lanikai/tlswire/tlswire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server fans out decoded messages to every currently-connected websocket
// client. It has no persistence: a client that connects late only sees
// messages broadcast after it joins.
type Server struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan summary

	log *logging.Logger
}

// NewServer constructs an idle Server; call ListenAndServe to start
// accepting connections.
func NewServer() *Server {
	return &Server{
		clients: make(map[*websocket.Conn]chan summary),
		log:     logging.DefaultLogger.WithTag("inspector"),
	}
}

// ListenAndServe blocks serving the websocket endpoint at addr.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebsocket)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed: %s", err)
		return
	}

	ch := make(chan summary, 64)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for msg := range ch {
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Debug("write to client failed, dropping: %s", err)
			return
		}
	}
}

// Broadcast delivers msg's summary to every connected client. Clients whose
// outbound channel is full are dropped rather than allowed to block the
// decode loop that called Broadcast.
func (s *Server) Broadcast(msg *tlswire.DecodedMessage) {
	sm := summarize(msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- sm:
		default:
			s.log.Debug("client backlog full, disconnecting")
			close(ch)
			delete(s.clients, conn)
		}
	}
}

// BroadcastSSLv2 delivers rec's summary to every connected client, for the
// legacy SSLv2 dump path which has no ContentType/DecodedMessage envelope
// to share with Broadcast.
func (s *Server) BroadcastSSLv2(rec *tlswire.SSLv2Record) {
	sm := summary{ContentType: "ssl2"}
	switch rec.Parsed.(type) {
	case *tlswire.SSLv2ClientHello:
		sm.Detail = "client_hello"
	case *tlswire.SSLv2ServerHello:
		sm.Detail = "server_hello"
	default:
		sm.Detail = fmt.Sprintf("type=%d", rec.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- sm:
		default:
			s.log.Debug("client backlog full, disconnecting")
			close(ch)
			delete(s.clients, conn)
		}
	}
}

// summary is the JSON shape pushed to inspector clients: enough to render a
// human-readable timeline without exposing this package's internal types.
type summary struct {
	ContentType string          `json:"content_type"`
	Detail      string          `json:"detail,omitempty"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

func summarize(msg *tlswire.DecodedMessage) summary {
	sm := summary{ContentType: msg.ContentType.String()}
	switch msg.ContentType {
	case tlswire.HandshakeContentType:
		if msg.Handshake != nil {
			sm.Detail = msg.Handshake.MessageType.String()
		} else if msg.DTLSHandshake != nil {
			sm.Detail = msg.DTLSHandshake.MessageType.String()
		}
	case tlswire.AlertContentType:
		sm.Detail = "alert"
	case tlswire.ApplicationDataContentType:
		sm.Detail = "application_data"
	}
	return sm
}
