package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/acVeli/phaserGame/internal/config"
)

// Server owns the HTTP listener and the websocket endpoint. Every accepted
// connection gets its own Session, Conn state machine and read goroutine.
type Server struct {
	cfg  config.NetworkConfig
	deps *Deps
	log  *zap.Logger

	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

func New(cfg config.NetworkConfig, deps *Deps, log *zap.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The game client connects cross-origin during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", s.serveHealthz)
	mux.HandleFunc("/metrics", s.serveMetrics)
	s.httpSrv = &http.Server{Handler: mux}
	return s
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and closes every live session.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.deps.Hub.ForEachExcept("", func(sess *Session) {
		sess.Close()
	})
	return err
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	sess := NewSession(ws, s.cfg.OutQueueSize, s.cfg.WriteTimeout, s.deps.Metrics, s.log)
	s.deps.Hub.Add(sess)
	s.log.Info("session connected",
		zap.String("transport", sess.ID),
		zap.String("remote", r.RemoteAddr),
	)

	go s.readLoop(sess)
}

func (s *Server) readLoop(sess *Session) {
	conn := NewConn(s.deps, sess)
	defer conn.HandleDisconnect()

	sess.ws.SetReadLimit(s.cfg.ReadLimit)
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = sess.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, frame, err := sess.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("session read ended",
					zap.String("transport", sess.ID), zap.Error(err))
			}
			return
		}
		conn.HandleFrame(frame)
	}
}

func (s *Server) serveHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.deps.Hub.Len(),
		"players":  s.deps.Registry.Len(),
	})
}

func (s *Server) serveMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.deps.Metrics.Snapshot())
}
