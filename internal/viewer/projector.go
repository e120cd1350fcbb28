// Package viewer is the client side of bouncelog: one Projector per session
// owns a simulation, renders the last fetched log and forwards user actions
// to the server.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/bouncelog/internal/dispatcher"
	"github.com/OCAP2/bouncelog/internal/logging"
	"github.com/OCAP2/bouncelog/internal/queue"
	"github.com/OCAP2/bouncelog/internal/sim"
	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/OCAP2/bouncelog/pkg/streaming"
	"github.com/rs/zerolog"
)

const (
	eventRefreshTimeout = 10 * time.Second
	eventBuffer         = 16
)

// LogClient is the subset of the API client the projector forwards to.
type LogClient interface {
	SavePosition(ctx context.Context, p core.Position3D) (string, error)
	SaveAllPositions(ctx context.Context, ps []core.Position3D) (string, error)
	GetPositions(ctx context.Context) ([]core.Snapshot, error)
	DeleteEntry(ctx context.Context, id uint) (string, error)
	ClearDashboard(ctx context.Context) (string, error)
	ClearAllEntries(ctx context.Context) (string, error)
}

// Dependencies configures a Projector. Room and Initial default to the
// standard room with the ball at rest in the origin moving at DefaultVelocity.
type Dependencies struct {
	Client  LogClient
	Room    *sim.Room
	Initial *sim.State
	Logger  zerolog.Logger
}

// Projector is one client session.
type Projector struct {
	client     LogClient
	machine    *sim.Machine
	pending    *queue.Queue[core.Position3D]
	dispatcher *dispatcher.Dispatcher
	logger     zerolog.Logger

	mu       sync.Mutex
	rows     []core.Snapshot
	clientID string
	issued   uint64
	applied  uint64
	lastMsg  string
}

// NewProjector creates a session with its own simulation machine.
func NewProjector(deps Dependencies) (*Projector, error) {
	if deps.Client == nil {
		return nil, errors.New("viewer: client is required")
	}

	room := sim.DefaultRoom()
	if deps.Room != nil {
		room = *deps.Room
	}
	initial := sim.NewState(sim.DefaultVelocity)
	if deps.Initial != nil {
		initial = *deps.Initial
	}

	d, err := dispatcher.New(logging.NewEventLogger(deps.Logger))
	if err != nil {
		return nil, fmt.Errorf("viewer: create dispatcher: %w", err)
	}

	p := &Projector{
		client:     deps.Client,
		machine:    sim.NewMachine(room, initial),
		pending:    queue.New[core.Position3D](),
		dispatcher: d,
		logger:     deps.Logger,
		rows:       []core.Snapshot{},
	}
	p.machine.OnCapture(p.persistCapture)
	p.registerHandlers()
	return p, nil
}

// Machine returns the session's simulation machine.
func (p *Projector) Machine() *sim.Machine {
	return p.machine
}

// Rows returns a copy of the currently rendered log.
func (p *Projector) Rows() []core.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Snapshot, len(p.rows))
	copy(out, p.rows)
	return out
}

// Pending returns captures whose individual save failed.
func (p *Projector) Pending() []core.Position3D {
	return p.pending.Items()
}

// ClientID returns the id the server assigned in its hello, if any.
func (p *Projector) ClientID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID
}

// LastMessage returns the most recent server reply or error text.
func (p *Projector) LastMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastMsg
}

// Refresh fetches the whole log and replaces the rendered rows. A response
// that arrives after a newer one has been applied is discarded.
func (p *Projector) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.mu.Unlock()

	rows, err := p.client.GetPositions(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to fetch positions")
		p.setMessage(err.Error())
		return fmt.Errorf("refresh: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if seq < p.applied {
		p.logger.Debug().Uint64("seq", seq).Uint64("applied", p.applied).Msg("Discarding stale refresh")
		return nil
	}
	p.applied = seq
	p.rows = rows
	return nil
}

// Toggle stops a running simulation or resumes a paused one. Stopping runs
// the capture sink, which persists the position, and then refreshes. If the
// save fails the capture is kept pending and the rendered log is left as is.
func (p *Projector) Toggle(ctx context.Context) (sim.Phase, error) {
	phase, err := p.machine.Toggle(ctx)
	if err != nil || phase != sim.PhasePaused {
		return phase, err
	}
	return phase, p.Refresh(ctx)
}

// persistCapture is the machine's capture sink.
func (p *Projector) persistCapture(ctx context.Context, pos core.Position3D) error {
	msg, err := p.client.SavePosition(ctx, pos)
	if err != nil {
		p.pending.Push(pos)
		p.logger.Error().Err(err).Str("position", sim.FormatPosition(pos)).Msg("Failed to save position")
		p.setMessage(err.Error())
		return fmt.Errorf("save position: %w", err)
	}
	p.setMessage(msg)
	return nil
}

// SaveAll posts every pending capture as one batch. On success the posted
// captures leave the queue and the log is refreshed.
func (p *Projector) SaveAll(ctx context.Context) error {
	batch := p.pending.Items()
	if len(batch) == 0 {
		p.setMessage("Nothing to save.")
		return nil
	}

	msg, err := p.client.SaveAllPositions(ctx, batch)
	if err != nil {
		p.logger.Error().Err(err).Int("count", len(batch)).Msg("Failed to save pending positions")
		p.setMessage(err.Error())
		return fmt.Errorf("save all positions: %w", err)
	}
	p.pending.Drop(len(batch))
	p.setMessage(msg)
	return p.Refresh(ctx)
}

// Delete removes one entry.
func (p *Projector) Delete(ctx context.Context, id uint) error {
	return p.forward(ctx, "delete entry", func(ctx context.Context) (string, error) {
		return p.client.DeleteEntry(ctx, id)
	})
}

// ClearDashboard empties the log through the dashboard route.
func (p *Projector) ClearDashboard(ctx context.Context) error {
	return p.forward(ctx, "clear dashboard", p.client.ClearDashboard)
}

// ClearAll empties the log.
func (p *Projector) ClearAll(ctx context.Context) error {
	return p.forward(ctx, "clear all entries", p.client.ClearAllEntries)
}

// HandleEvent routes a broadcast envelope. Unknown event types are ignored.
func (p *Projector) HandleEvent(env streaming.Envelope) {
	_, err := p.dispatcher.Dispatch(dispatcher.Event{
		Type:     env.Type,
		Payload:  env.Payload,
		Received: time.Now(),
	})
	switch {
	case err == nil:
	case errors.Is(err, dispatcher.ErrUnknownEvent):
		p.logger.Debug().Str("event", env.Type).Msg("Ignoring unknown event")
	default:
		p.logger.Warn().Err(err).Str("event", env.Type).Msg("Event not handled")
	}
}

// Bind wires a subscription to this projector: every (re)connect and every
// change notification triggers a full refresh.
func (p *Projector) Bind(sub *Subscription) {
	sub.OnConnect(func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventRefreshTimeout)
		defer cancel()
		_ = p.Refresh(ctx)
	})
	sub.OnEvent(p.HandleEvent)
}

func (p *Projector) forward(ctx context.Context, op string, call func(context.Context) (string, error)) error {
	msg, err := call(ctx)
	if err != nil {
		p.logger.Error().Err(err).Str("op", op).Msg("Request failed")
		p.setMessage(err.Error())
		return fmt.Errorf("%s: %w", op, err)
	}
	p.setMessage(msg)
	return p.Refresh(ctx)
}

func (p *Projector) setMessage(msg string) {
	p.mu.Lock()
	p.lastMsg = msg
	p.mu.Unlock()
}

func (p *Projector) registerHandlers() {
	refetch := func(dispatcher.Event) (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), eventRefreshTimeout)
		defer cancel()
		return nil, p.Refresh(ctx)
	}

	for _, typ := range streaming.RefetchTypes {
		if typ == streaming.TypeHello {
			continue
		}
		p.dispatcher.Register(typ, refetch, dispatcher.Buffered(eventBuffer), dispatcher.Logged())
	}

	// The subscription refreshes on connect, so hello only records the id.
	p.dispatcher.Register(streaming.TypeHello, func(e dispatcher.Event) (any, error) {
		var hello streaming.HelloPayload
		if err := json.Unmarshal(e.Payload, &hello); err != nil {
			return nil, fmt.Errorf("decode hello: %w", err)
		}
		p.mu.Lock()
		p.clientID = hello.ClientID
		p.mu.Unlock()
		p.logger.Info().Str("clientId", hello.ClientID).Msg("Connected to server")
		return nil, nil
	})
}
