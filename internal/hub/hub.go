package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/captains-backend/internal/game"
	"github.com/DoyleJ11/captains-backend/internal/session"
)

var ErrSessionExists = errors.New("session code already in use")
var ErrSessionNotFound = errors.New("session not found")

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Code      string
	Teams     []string
	HostToken string
	Reply     chan CreateResult
}

type CreateResult struct {
	Session *session.Session
	Err     error
}

type GetSession struct {
	Code  string
	Reply chan *session.Session
}

type RemoveSession struct {
	Code string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Hub owns the set of live sessions, keyed by join code.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	opts     session.Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, opts session.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

// Create starts a new session under code.
func (h *Hub) Create(ctx context.Context, code string, teams []string, hostToken string) (*session.Session, error) {
	reply := make(chan CreateResult, 1)
	if err := h.send(ctx, CreateSession{Code: code, Teams: teams, HostToken: hostToken, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Session, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, session.ErrClosed
	}
}

// Get returns the session for code, or ErrSessionNotFound.
func (h *Hub) Get(ctx context.Context, code string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := h.send(ctx, GetSession{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case s := <-reply:
		if s == nil {
			return nil, ErrSessionNotFound
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, session.ErrClosed
	}
}

// Remove shuts down and forgets the session under code, if any.
func (h *Hub) Remove(ctx context.Context, code string) error {
	return h.send(ctx, RemoveSession{Code: code})
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return session.ErrClosed
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if _, ok := h.sessions[msg.Code]; ok {
					msg.Reply <- CreateResult{Err: ErrSessionExists}
					break
				}
				s := session.New(h.ctx, game.NewState(msg.Code, msg.Teams), msg.HostToken, h.opts)
				h.sessions[msg.Code] = s
				h.log.Info("session created",
					zap.String("session", msg.Code),
					zap.Strings("teams", msg.Teams),
				)
				msg.Reply <- CreateResult{Session: s}

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // may be nil

			case RemoveSession:
				if s := h.sessions[msg.Code]; s != nil {
					stop(s)
					delete(h.sessions, msg.Code)
					h.log.Info("session removed", zap.String("session", msg.Code))
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for code, s := range h.sessions {
		stop(s)
		delete(h.sessions, code)
	}
	h.cancel()
}

// stop shuts s down and waits for its goroutine to exit.
func stop(s *session.Session) {
	select {
	case s.Inbox() <- session.Shutdown{}:
	case <-s.Done():
	}
	<-s.Done()
}
