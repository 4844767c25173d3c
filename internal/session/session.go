package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/captains-backend/internal/game"
	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

var ErrUnauthorized = errors.New("invalid host token")
var ErrUnknownCommand = errors.New("unknown command")
var ErrGameNotActive = errors.New("game is not active")
var ErrClosed = errors.New("session closed")
var ErrNotBound = errors.New("connection is not bound to that player")

// Roller produces the value of a turn-consuming action.
type Roller interface {
	Roll() int
}

type RollerFunc func() int

func (f RollerFunc) Roll() int { return f() }

// DieRoller rolls a six-sided die.
var DieRoller = RollerFunc(func() int { return rand.Intn(6) + 1 })

type Options struct {
	SettleDelay   time.Duration
	WatchdogGrace time.Duration // 0 disables the stuck-transition check
	TargetScore   int           // 0 disables
	Scheduler     Scheduler
	Roller        Roller
	Logger        *zap.Logger
}

// Session owns one game. All mutation happens on its goroutine, fed through
// the inbox.
type Session struct {
	code      string
	hostToken string
	inbox     chan Msg
	state     *game.State
	coord     *Coordinator
	bc        *Broadcaster
	bound     map[string]string // client id -> player id
	roller    Roller
	opts      Options
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(parent context.Context, state *game.State, hostToken string, opts Options) *Session {
	ctx, cancel := context.WithCancel(parent)

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("session", state.Code))

	s := &Session{
		code:      state.Code,
		hostToken: hostToken,
		inbox:     make(chan Msg, 64),
		state:     state,
		bc:        NewBroadcaster(log),
		bound:     make(map[string]string),
		roller:    opts.Roller,
		opts:      opts,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if s.roller == nil {
		s.roller = DieRoller
	}
	s.coord = NewCoordinator(state, s.bc, CoordinatorOptions{
		SettleDelay: opts.SettleDelay,
		Scheduler:   opts.Scheduler,
		Dispatch:    s.dispatch,
		Logger:      log,
	})

	go s.loop()
	return s
}

func (s *Session) Code() string { return s.code }

// Inbox exposes the session's message channel.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Submit queues m unless the session or ctx is gone first.
func (s *Session) Submit(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do sends a client request and waits for its outcome.
func (s *Session) Do(ctx context.Context, clientID string, m protocol.ClientMessage) error {
	reply := make(chan error, 1)
	if err := s.Submit(ctx, FromClient{ClientID: clientID, Msg: m, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns the current snapshot and subscriber count.
func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.Submit(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Authorize reports whether token is this session's host token.
func (s *Session) Authorize(token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.hostToken)) == 1
}

func (s *Session) dispatch(fn func()) {
	select {
	case s.inbox <- dispatched{fn: fn}:
	case <-s.done:
	}
}

func (s *Session) loop() {
	defer close(s.done)

	var watchdog <-chan time.Time
	if s.opts.WatchdogGrace > 0 {
		t := time.NewTicker(s.opts.WatchdogGrace)
		defer t.Stop()
		watchdog = t.C
	}

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case now := <-watchdog:
			s.coord.CheckStuck(now, s.opts.WatchdogGrace)

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.bc.Subscribe(msg.ClientID, msg.Outbox)
				snap := s.coord.Snapshot()
				snap.Version = s.bc.Seq()
				s.bc.Send(msg.ClientID, protocol.ServerMessage{Type: protocol.TypeStateSnapshot, Snapshot: &snap})

			case Leave:
				s.bc.Unsubscribe(msg.ClientID)
				delete(s.bound, msg.ClientID)

			case FromClient:
				err := s.handle(msg.ClientID, msg.Msg)
				s.replyError(msg.ClientID, err)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case GetState:
				msg.Reply <- View{Snapshot: s.coord.Snapshot(), NumClients: s.bc.Len()}

			case dispatched:
				msg.fn()

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) shutdown() {
	s.coord.Shutdown()
	s.bc.Close()
	s.cancel()
	s.log.Info("session closed")
}

// replyError tells the sender why its request failed.
func (s *Session) replyError(clientID string, err error) {
	if err == nil || clientID == "" {
		return
	}
	var rej *RejectedError
	if errors.As(err, &rej) {
		s.bc.Send(clientID, protocol.ServerMessage{
			Type:      protocol.TypeActionRejected,
			Rejection: rej.Verdict.Rejection(),
		})
		return
	}
	s.bc.Send(clientID, protocol.ServerMessage{Type: protocol.TypeError, Error: err.Error()})
}

// handle is the single dispatch point for inbound requests.
func (s *Session) handle(clientID string, m protocol.ClientMessage) error {
	switch m.Type {
	case protocol.TypeJoin:
		return s.join(clientID, m)
	case protocol.TypeLeave:
		return s.leave(clientID, m.PlayerID)
	case protocol.TypeRequestAction:
		return s.act(m.TeamID, m.PlayerID)
	case protocol.TypeRequestAdvance:
		if err := s.validate(m.TeamID, m.PlayerID); err != nil {
			return err
		}
		return s.coord.RequestAdvance("end_turn")
	case protocol.TypeRequestSkip:
		if !s.Authorize(m.Token) {
			return ErrUnauthorized
		}
		return s.coord.RequestAdvance("skip")
	case protocol.TypeHostControl:
		if !s.Authorize(m.Token) {
			return ErrUnauthorized
		}
		return s.host(m)
	}
	return ErrUnknownCommand
}

func (s *Session) join(clientID string, m protocol.ClientMessage) error {
	if m.PlayerID != "" {
		if p, ok := s.state.Players[m.PlayerID]; ok {
			s.bind(clientID, p.ID)
			s.bc.Send(clientID, protocol.ServerMessage{
				Type:   protocol.TypeJoined,
				Joined: &protocol.Joined{PlayerID: p.ID, TeamID: p.TeamID},
			})
			return nil
		}
	}

	p, err := s.state.AddPlayer(uuid.NewString(), m.Nickname, m.TeamID)
	if err != nil {
		return err
	}
	s.log.Info("player joined",
		zap.String("player", p.ID),
		zap.String("nickname", p.Nickname),
		zap.String("team", p.TeamID),
	)
	s.bind(clientID, p.ID)
	s.bc.Send(clientID, protocol.ServerMessage{
		Type:   protocol.TypeJoined,
		Joined: &protocol.Joined{PlayerID: p.ID, TeamID: p.TeamID},
	})
	s.coord.Broadcast()
	return nil
}

// bind ties a connection to a player. A player is bound to at most one
// connection; rebinding moves it.
func (s *Session) bind(clientID, playerID string) {
	if clientID == "" {
		return
	}
	for c, p := range s.bound {
		if p == playerID {
			delete(s.bound, c)
		}
	}
	s.bound[clientID] = playerID
}

// leave removes the player bound to clientID. playerID, when given, must
// name that same player.
func (s *Session) leave(clientID, playerID string) error {
	if s.coord.Ended() {
		return game.ErrGameEnded
	}
	bound, ok := s.bound[clientID]
	if !ok || (playerID != "" && playerID != bound) {
		return ErrNotBound
	}
	if err := s.state.RemovePlayer(bound); err != nil {
		return err
	}
	delete(s.bound, clientID)
	s.log.Info("player left", zap.String("player", bound))
	s.coord.Broadcast()
	return nil
}

func (s *Session) validate(teamID, playerID string) error {
	if s.state.Phase != protocol.PhaseActive {
		return &RejectedError{Verdict: game.Verdict{
			Reason:  protocol.ReasonGameNotActive,
			Message: "The game is not in progress",
		}}
	}
	v := game.Validate(s.state, s.coord.Transitioning(), teamID, playerID)
	if !v.Valid {
		s.log.Debug("action rejected",
			zap.String("team", teamID),
			zap.String("player", playerID),
			zap.String("reason", string(v.Reason)),
		)
		return &RejectedError{Verdict: v}
	}
	return nil
}

// act performs the turn-consuming roll and hands the turn on.
func (s *Session) act(teamID, playerID string) error {
	if err := s.validate(teamID, playerID); err != nil {
		return err
	}

	roll := s.roller.Roll()
	score, err := s.coord.AwardPoints(teamID, roll)
	if err != nil {
		return err
	}
	s.bc.Publish(protocol.ServerMessage{
		Type: protocol.TypeActionResult,
		ActionResult: &protocol.ActionResult{
			TeamID:   teamID,
			PlayerID: playerID,
			Roll:     roll,
			Score:    score,
		},
	})

	if s.opts.TargetScore > 0 && score >= s.opts.TargetScore {
		return s.coord.EndGame(game.EndReasonTargetScore)
	}
	return s.coord.RequestAdvance("action")
}

func (s *Session) host(m protocol.ClientMessage) error {
	switch m.Action {
	case protocol.HostStart:
		return s.coord.Start()
	case protocol.HostSkip:
		return s.coord.RequestAdvance("skip")
	case protocol.HostEnd:
		return s.coord.EndGame(game.EndReasonHost)
	case protocol.HostRemoveTeam:
		if s.coord.Ended() {
			return game.ErrGameEnded
		}
		if err := s.state.RemoveTeam(m.TeamID); err != nil {
			return err
		}
	case protocol.HostSetCaptain:
		if s.coord.Ended() {
			return game.ErrGameEnded
		}
		if err := s.state.SetCaptain(m.TeamID, m.PlayerID); err != nil {
			return err
		}
	case protocol.HostAward:
		if _, err := s.coord.AwardPoints(m.TeamID, m.Points); err != nil {
			return err
		}
	default:
		return ErrUnknownCommand
	}
	s.coord.Broadcast()
	return nil
}
