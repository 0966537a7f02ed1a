package wsbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"taskforce/lifecycle"
	"taskforce/mission"
	"taskforce/plan"
	"taskforce/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RequestHandler processes one incoming envelope and returns the response
// envelope, or nil for fire-and-forget messages.
type RequestHandler func(env *Envelope) (*Envelope, error)

// Server accepts WebSocket connections from workers and operator consoles
// and routes their requests into the engine.
type Server struct {
	stores     *store.Bundle
	machine    *lifecycle.Machine
	controller *mission.Controller
	builder    *plan.Builder
	logger     hclog.Logger

	handlers map[MessageType]RequestHandler

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// conn is one client connection with its outbound queue.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

func NewServer(stores *store.Bundle, machine *lifecycle.Machine, controller *mission.Controller, builder *plan.Builder, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Server{
		stores:     stores,
		machine:    machine,
		controller: controller,
		builder:    builder,
		logger:     logger,
		handlers:   make(map[MessageType]RequestHandler),
		conns:      make(map[*conn]struct{}),
	}
	s.registerHandlers()
	return s
}

// ServeHTTP upgrades the request and runs the connection's pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	c := &conn{ws: ws, send: make(chan []byte, 256)}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

// ListenAndServe blocks serving the bridge endpoint until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)

	httpSrv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	s.logger.Info("bridge listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) readPump(c *conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		close(c.send)
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.logger.Warn("invalid envelope", "error", err)
			continue
		}

		s.dispatch(c, &env)
	}
}

func (s *Server) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(c *conn, env *Envelope) {
	if env.Type == TypeHeartbeat {
		ack, _ := NewResponse(env.RequestID, TypeHeartbeatAck, nil)
		s.sendEnvelope(c, ack)
		return
	}

	handler, ok := s.handlers[env.Type]
	if !ok {
		s.logger.Warn("unhandled message type", "type", env.Type)
		errResp, _ := NewError(env.RequestID, "unknown_type", string(env.Type))
		s.sendEnvelope(c, errResp)
		return
	}

	resp, err := handler(env)
	if err != nil {
		errResp, _ := NewError(env.RequestID, "handler_error", err.Error())
		s.sendEnvelope(c, errResp)
		return
	}
	if resp != nil {
		s.sendEnvelope(c, resp)
	}
}

func (s *Server) sendEnvelope(c *conn, env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("marshal envelope", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		s.logger.Warn("send queue full, dropping message", "type", env.Type)
	}
}
