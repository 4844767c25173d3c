package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/captains-backend/internal/hub"
	"github.com/DoyleJ11/captains-backend/internal/session"
	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

type Options struct {
	OutboxSize     int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.OutboxSize < 1 {
		o.OutboxSize = 32
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()

	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		s, err := h.Get(r.Context(), code)
		if err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.AllowedOrigins,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := opts.Logger.With(zap.String("session", code), zap.String("client", clientID))
		log.Debug("client connected")

		out := make(chan protocol.ServerMessage, opts.OutboxSize)
		if err := s.Submit(r.Context(), session.Join{ClientID: clientID, Outbox: out}); err != nil {
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = s.Submit(ctx, session.Leave{ClientID: clientID})
		}()

		// Writer goroutine. The outbox is closed when the session drops this
		// client or shuts down.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					log.Error("marshal outbound", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, opts.WriteTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					log.Debug("write failed", zap.Error(err))
					return
				}
			}
			conn.Close(websocket.StatusTryAgainLater, "session closed or client too slow")
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), opts.ReadTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("client disconnected")
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm protocol.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}
			if !Known(cm.Type) {
				writeError(r.Context(), conn, "unknown type")
				continue
			}

			if err := s.Submit(r.Context(), session.FromClient{ClientID: clientID, Msg: cm}); err != nil {
				if errors.Is(err, session.ErrClosed) {
					return
				}
				log.Debug("submit failed", zap.Error(err))
				return
			}
		}
	}
}

// Known reports whether t is an inbound message kind.
func Known(t protocol.MessageType) bool {
	switch t {
	case protocol.TypeJoin,
		protocol.TypeLeave,
		protocol.TypeRequestAction,
		protocol.TypeRequestAdvance,
		protocol.TypeRequestSkip,
		protocol.TypeHostControl:
		return true
	}
	return false
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(protocol.ServerMessage{Type: protocol.TypeError, Error: msg})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
