package session

import (
	"fmt"

	"github.com/DoyleJ11/captains-backend/internal/game"
	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

type Msg interface{ isSessionMsg() }

// Join subscribes a connection. The current snapshot is sent to Outbox
// right away.
type Join struct {
	ClientID string
	Outbox   chan protocol.ServerMessage
}

func (Join) isSessionMsg() {}

// Leave unsubscribes a connection. The player, if any, stays in the game.
type Leave struct{ ClientID string }

func (Leave) isSessionMsg() {}

// FromClient carries one inbound request. Outcomes that concern only the
// sender go to ClientID's outbox; Reply, when set, receives nil or the
// error for in-process callers.
type FromClient struct {
	ClientID string
	Msg      protocol.ClientMessage
	Reply    chan error
}

func (FromClient) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// dispatched runs fn inside the session goroutine.
type dispatched struct{ fn func() }

func (dispatched) isSessionMsg() {}

type View struct {
	Snapshot   protocol.Snapshot
	NumClients int
}

// RejectedError is returned to in-process callers when the validator
// refuses an action.
type RejectedError struct {
	Verdict game.Verdict
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("action rejected: %s: %s", e.Verdict.Reason, e.Verdict.Message)
}
