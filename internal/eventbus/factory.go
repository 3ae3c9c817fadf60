package eventbus

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Factory issues seq values monotonically, beginning at 1, and stamps every
// event with ts_ms. seq is taken from an atomic counter in Next, outside the
// Bus lock; enqueue order matches seq order only while one goroutine calls
// Next and then Bus.Emit for each event in turn, as the Emitter does. This
// type owns the counter and turn identity, grounded on the atomic
// monotonic-counter idiom of an event emitter's nextSeq().
type Factory struct {
	turnID string
	seq    uint64
}

// NewFactory creates a Factory for a single turn.
func NewFactory(turnID string) *Factory {
	return &Factory{turnID: turnID}
}

// TurnID returns the turn this factory issues events for.
func (f *Factory) TurnID() string {
	return f.turnID
}

// Next returns the next seq value and builds the common event envelope.
func (f *Factory) Next(kind Kind) Event {
	return Event{
		TurnID: f.turnID,
		Seq:    atomic.AddUint64(&f.seq, 1),
		TSMs:   time.Now().UnixMilli(),
		Kind:   kind,
	}
}

// NewSpanID yields a fresh opaque id for a node span.
func NewSpanID(nodeID string) string {
	return nodeID + "-" + uuid.NewString()
}
