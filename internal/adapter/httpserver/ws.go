package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

const (
	// wsAuthTimeout bounds the wait for the token frame.
	wsAuthTimeout  = 10 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// WSHandler upgrades to a WebSocket and streams the subscriber's event
// feed. The first inbound text frame must be a bearer token; anything
// else closes the socket. Later inbound "ping" frames are answered
// with a pong event on the same connection. Outbound frames are
// JSON-encoded events.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// The socket authenticates itself with the first frame, so
			// origin checks add nothing here.
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		s.serveWS(r.Context(), conn)
	}
}

func (s *Server) serveWS(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	authCtx, cancel := context.WithTimeout(ctx, wsAuthTimeout)
	_, frame, err := conn.Read(authCtx)
	cancel()
	if err != nil {
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(frame)), "Bearer "))
	userID, err := s.Tokens.Verify(token)
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	sub := s.Bus.Subscribe(userID)
	defer sub.Close()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := writeEvent(ctx, conn, domain.Event{
		ID:   ulid.Make().String(),
		Type: domain.EventLogEntry,
		At:   time.Now().UTC(),
		Data: domain.EventData{Level: "info", Message: "connected"},
	}); err != nil {
		return
	}

	// Read loop: detects the peer closing and answers pings. Writes are
	// serialized inside the websocket library, so the pong may go out
	// while the event loop writes.
	go func() {
		defer stop()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if strings.EqualFold(strings.TrimSpace(string(data)), "ping") {
				_ = writeEvent(ctx, conn, domain.Event{
					ID:   ulid.Make().String(),
					Type: domain.EventPong,
					At:   time.Now().UTC(),
				})
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(ctx, conn, e); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("event marshal failed", slog.Any("error", err))
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
