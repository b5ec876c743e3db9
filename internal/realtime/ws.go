package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/auth"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// WSHandler upgrades authenticated requests to websocket sessions.
type WSHandler struct {
	router *Router
	secret []byte
}

func NewWSHandler(router *Router, secret []byte) *WSHandler {
	return &WSHandler{router: router, secret: secret}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromRequest(h.secret, r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "UNAUTHORIZED", "error": "Unauthorized"})
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("realtime: upgrade failed for %s: %v", claims.Sub, err)
		return
	}

	s := newSession(conn, Identity{UserID: claims.Sub, Username: claims.Name})
	log.Printf("realtime: session %s opened for user %s", s.id, claims.Sub)
	go s.writeLoop()
	s.readLoop(r.Context(), h.router)
	log.Printf("realtime: session %s closed", s.id)
}

// session is one websocket connection: a reader running commands in order
// and a writer draining a bounded queue.
type session struct {
	id       string
	identity Identity
	conn     net.Conn
	out      chan []byte
	done     chan struct{}
	once     sync.Once
}

func newSession(conn net.Conn, identity Identity) *session {
	return &session{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		out:      make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

func (s *session) ID() string { return s.id }

func (s *session) Identity() Identity { return s.identity }

// Send queues payload. A client that lets the queue fill up is disconnected.
func (s *session) Send(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- payload:
		return true
	case <-s.done:
		return false
	default:
		log.Printf("realtime: session %s is not draining its queue; closing", s.id)
		s.Close()
		return false
	}
}

func (s *session) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *session) readLoop(ctx context.Context, router *Router) {
	defer func() {
		router.Disconnect(s)
		s.Close()
	}()
	for {
		data, op, err := wsutil.ReadClientData(s.conn)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}
		router.Handle(ctx, s, data)
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wsutil.WriteServerMessage(s.conn, ws.OpText, payload); err != nil {
				s.Close()
				return
			}
		}
	}
}
