package client

import (
	"sync"

	"github.com/replisync/replisync"
)

// queuedCommand is one command tagged with the pawn and tick it belongs
// to, so a single FIFO queue can hold commands for more than one pawn
// at once.
type queuedCommand struct {
	Pawn    replisync.EntityKey
	Tick    uint16
	Command replisync.Replica
}

// Predictor is the client-side command receiver of spec §4.J: it
// records every queued command per pawn in a ring buffer, and on a
// server correction rewinds the affected pawn and replays its
// commands from the correction point forward.
type Predictor struct {
	mu sync.Mutex

	history  map[replisync.EntityKey]*replisync.SequenceBuffer[replisync.Replica]
	incoming []queuedCommand
	replay   []queuedCommand
	triggers map[replisync.EntityKey]uint16

	metrics *replisync.Metrics
}

// NewPredictor creates an empty predictor.
func NewPredictor() *Predictor {
	return &Predictor{
		history:  make(map[replisync.EntityKey]*replisync.SequenceBuffer[replisync.Replica]),
		triggers: make(map[replisync.EntityKey]uint16),
	}
}

// WithMetrics attaches a metrics collector so each scheduled replay is
// counted. Optional, nil-safe.
func (p *Predictor) WithMetrics(m *replisync.Metrics) *Predictor {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = m
	return p
}

// InitPawn allocates a fresh command history for a newly assigned pawn.
func (p *Predictor) InitPawn(pawn replisync.EntityKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[pawn] = replisync.NewSequenceBuffer[replisync.Replica](replisync.HistorySize)
}

// DropPawn clears a pawn's command history and any pending trigger on
// unassignment.
func (p *Predictor) DropPawn(pawn replisync.EntityKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.history, pawn)
	delete(p.triggers, pawn)
}

// Queue pushes cmd onto the incoming queue for this frame and records
// it in pawn's replay history at tick.
func (p *Predictor) Queue(pawn replisync.EntityKey, tick uint16, cmd replisync.Replica) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.incoming = append(p.incoming, queuedCommand{Pawn: pawn, Tick: tick, Command: cmd})
	hist, ok := p.history[pawn]
	if !ok {
		hist = replisync.NewSequenceBuffer[replisync.Replica](replisync.HistorySize)
		p.history[pawn] = hist
	}
	hist.Insert(tick, cmd)
}

// RequestReplay schedules a rollback-and-replay for pawn starting at
// fromTick. If a replay is already pending for pawn at a later tick,
// the request is lowered to fromTick — concurrent corrections always
// converge on the oldest requested tick, never the most recent.
func (p *Predictor) RequestReplay(pawn replisync.EntityKey, fromTick uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.triggers[pawn]
	if !ok || replisync.SequenceGreaterThan(existing, fromTick) {
		p.triggers[pawn] = fromTick
		if p.metrics != nil {
			p.metrics.ReplaysTriggered.Inc()
		}
	}
}

// pawnMirror is satisfied by ReplicaManager; kept narrow so Predictor
// does not need to import the whole manager surface.
type pawnMirror interface {
	MirrorPawnFromAuthoritative(pawn replisync.EntityKey)
}

// ProcessReplay runs once per frame, before user code reads commands.
// For every pawn with a pending trigger it mirrors the pawn's shadow
// components back onto their authoritative twin, clears both queues,
// then re-queues every stored command from the trigger tick through
// headTick (inclusive) onto the replay queue in ascending order.
func (p *Predictor) ProcessReplay(mirror pawnMirror, headTick uint16) {
	p.mu.Lock()
	if len(p.triggers) == 0 {
		p.mu.Unlock()
		return
	}
	triggers := p.triggers
	p.triggers = make(map[replisync.EntityKey]uint16)
	p.incoming = nil
	p.replay = nil
	p.mu.Unlock()

	for pawn, fromTick := range triggers {
		mirror.MirrorPawnFromAuthoritative(pawn)

		p.mu.Lock()
		hist := p.history[pawn]
		p.mu.Unlock()
		if hist == nil {
			continue
		}

		for tick := fromTick; ; tick++ {
			if cmd, ok := hist.Get(tick); ok {
				p.mu.Lock()
				p.replay = append(p.replay, queuedCommand{Pawn: pawn, Tick: tick, Command: cmd})
				p.mu.Unlock()
			}
			if tick == headTick {
				break
			}
		}
	}
}

// PopIncoming dequeues the oldest queued command for this frame.
func (p *Predictor) PopIncoming() (replisync.EntityKey, uint16, replisync.Replica, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.incoming) == 0 {
		return 0, 0, nil, false
	}
	cmd := p.incoming[0]
	p.incoming = p.incoming[1:]
	return cmd.Pawn, cmd.Tick, cmd.Command, true
}

// PopReplay dequeues the oldest replayed command.
func (p *Predictor) PopReplay() (replisync.EntityKey, uint16, replisync.Replica, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.replay) == 0 {
		return 0, 0, nil, false
	}
	cmd := p.replay[0]
	p.replay = p.replay[1:]
	return cmd.Pawn, cmd.Tick, cmd.Command, true
}

// TrimHistory discards every stored command for pawn at or before
// tick, called after a server correction has been fully absorbed.
func (p *Predictor) TrimHistory(pawn replisync.EntityKey, tick uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if hist, ok := p.history[pawn]; ok {
		hist.RemoveUntil(tick)
	}
}
