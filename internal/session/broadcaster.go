package session

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

// Publisher receives every state change in the order it happened.
type Publisher interface {
	Publish(msg protocol.ServerMessage)
}

// Broadcaster fans messages out to subscriber outboxes. It stamps each
// published message with the next sequence number, so all subscribers see
// the same order. A subscriber whose outbox is full is dropped rather than
// allowed to stall the session.
type Broadcaster struct {
	subs map[string]chan protocol.ServerMessage
	seq  uint64
	log  *zap.Logger
}

func NewBroadcaster(log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]chan protocol.ServerMessage),
		log:  log,
	}
}

// Seq is the sequence number of the last published message.
func (b *Broadcaster) Seq() uint64 { return b.seq }

func (b *Broadcaster) Len() int { return len(b.subs) }

// Subscribe registers an outbox. Re-subscribing an id replaces its outbox.
func (b *Broadcaster) Subscribe(id string, out chan protocol.ServerMessage) {
	if old, ok := b.subs[id]; ok && old != out {
		close(old)
	}
	b.subs[id] = out
}

func (b *Broadcaster) Unsubscribe(id string) {
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Broadcaster) Publish(msg protocol.ServerMessage) {
	b.seq++
	msg.Seq = b.seq
	if msg.Snapshot != nil {
		snap := *msg.Snapshot
		snap.Version = b.seq
		msg.Snapshot = &snap
	}
	for id := range b.subs {
		b.deliver(id, msg)
	}
}

// Send delivers msg to one subscriber only. Direct replies are unsequenced.
func (b *Broadcaster) Send(id string, msg protocol.ServerMessage) {
	if _, ok := b.subs[id]; !ok {
		return
	}
	msg.Seq = 0
	b.deliver(id, msg)
}

func (b *Broadcaster) deliver(id string, msg protocol.ServerMessage) {
	ch := b.subs[id]
	select {
	case ch <- msg:
	default:
		b.log.Warn("dropping slow subscriber",
			zap.String("client", id),
			zap.String("type", string(msg.Type)),
		)
		close(ch)
		delete(b.subs, id)
	}
}

// Close closes every outbox, telling writers no more messages will come.
func (b *Broadcaster) Close() {
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
